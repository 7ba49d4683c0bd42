// Package frame provides a small, immutable, column-oriented DataFrame and
// Series with index labels.
//
// It covers the analysis surface that generated loan-portfolio code uses:
// column selection, boolean masks, sorting, group-by aggregation, merges and
// descriptive statistics. Every operation returns a new value; a frame is never
// modified after construction, so frames may be shared between goroutines.
//
// Cells are plain Go values: nil (missing), bool, int64, float64, string,
// time.Time and time.Duration.
package frame

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors.
var (
	ErrColumnNotFound = errors.New("column not found")
	ErrLengthMismatch = errors.New("length mismatch")
	ErrNotBoolean     = errors.New("mask must be boolean")
	ErrUnsupported    = errors.New("unsupported operation")
)

// ColumnError reports a missing column.
type ColumnError struct {
	Name string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("column not found: %q", e.Name)
}

func (e *ColumnError) Unwrap() error { return ErrColumnNotFound }

// DateLayouts are the layouts accepted when parsing dates.
var DateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2006/01/02",
}

// ParseCell infers a typed value from CSV text.
// Empty text and the usual NaN spellings are missing values.
func ParseCell(s string) any {
	t := strings.TrimSpace(s)
	switch t {
	case "", "NaN", "nan", "NULL", "null", "None", "NA", "N/A":
		return nil
	case "True", "true", "TRUE":
		return true
	case "False", "false", "FALSE":
		return false
	}
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		return f
	}
	return t
}

// ParseDate parses a date-like value. It returns false when v cannot be
// interpreted as a date.
func ParseDate(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range DateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		// Timestamps with fractional seconds or zones.
		if len(s) > 10 {
			if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// ToFloat converts a numeric cell to float64.
func ToFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case float64:
		if math.IsNaN(val) {
			return 0, false
		}
		return val, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// IsNull reports whether v is a missing value.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return true
	}
	return false
}

// Compare orders two cells. The second result is false when the values are
// not comparable (mixed kinds or missing values).
func Compare(a, b any) (int, bool) {
	if IsNull(a) || IsNull(b) {
		return 0, false
	}
	if af, ok := numeric(a); ok {
		bf, ok := numeric(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		if bt, ok := b.(time.Time); ok {
			at, ok := ParseDate(av)
			if !ok {
				return 0, false
			}
			return at.Compare(bt), true
		}
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bt, ok := ParseDate(b)
		if !ok {
			return 0, false
		}
		return av.Compare(bt), true
	case time.Duration:
		bd, ok := b.(time.Duration)
		if !ok {
			return 0, false
		}
		switch {
		case av < bd:
			return -1, true
		case av > bd:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func numeric(v any) (float64, bool) {
	switch v.(type) {
	case int64, int, float64, bool:
		return ToFloat(v)
	}
	return 0, false
}

// Equal reports whether two cells hold the same value.
func Equal(a, b any) bool {
	if IsNull(a) || IsNull(b) {
		return false
	}
	c, ok := Compare(a, b)
	return ok && c == 0
}

// normalizeNumber collapses integral floats produced by arithmetic back to
// int64 only when both inputs were integers.
func normalizeNumber(f float64, integral bool) any {
	if integral && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// FormatValue renders a cell for display. Missing values render as NaN and
// floats are rounded to six decimals to hide binary noise.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NaN"
	case string:
		return val
	case bool:
		if val {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return FormatFloat(val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04:05")
	case time.Duration:
		return FormatDuration(val)
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = FormatValue(p)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return fmt.Sprint(v)
}

// FormatDuration renders a duration the way pandas prints a Timedelta,
// for example "7 days" or "1 days 02:30:00".
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	days := int64(d / (24 * time.Hour))
	rest := d % (24 * time.Hour)
	if rest == 0 {
		return fmt.Sprintf("%s%d days", sign, days)
	}
	h := int64(rest / time.Hour)
	m := int64(rest % time.Hour / time.Minute)
	sec := int64(rest % time.Minute / time.Second)
	return fmt.Sprintf("%s%d days %02d:%02d:%02d", sign, days, h, m, sec)
}

// FormatFloat renders a float without trailing binary noise.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	r := math.Round(f*1e6) / 1e6
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// labelKey returns a comparable map key for an index label or group key.
func labelKey(v any) string {
	switch val := v.(type) {
	case nil:
		return "\x00nil"
	case string:
		return "s:" + val
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = labelKey(p)
		}
		return "t:" + strings.Join(parts, "\x1f")
	}
	if f, ok := numeric(v); ok {
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return "v:" + FormatValue(v)
}

// compareLabels orders labels for sorting; nil sorts last.
func compareLabels(a, b any) int {
	at, aok := a.([]any)
	bt, bok := b.([]any)
	if aok && bok {
		for i := 0; i < len(at) && i < len(bt); i++ {
			if c := compareLabels(at[i], bt[i]); c != 0 {
				return c
			}
		}
		return len(at) - len(bt)
	}
	switch {
	case IsNull(a) && IsNull(b):
		return 0
	case IsNull(a):
		return 1
	case IsNull(b):
		return -1
	}
	if c, ok := Compare(a, b); ok {
		return c
	}
	return strings.Compare(FormatValue(a), FormatValue(b))
}
