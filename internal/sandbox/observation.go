package sandbox

import (
	"regexp"
	"unicode/utf8"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapinsight/internal/fault"
	starctx "github.com/leapstack-labs/leapinsight/internal/starlark"
	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// Kind is the shape of an Observation.
type Kind string

// Observation kinds.
const (
	KindScalar  Kind = "scalar"
	KindMapping Kind = "mapping"
	KindTable   Kind = "table"
	KindText    Kind = "text"
	KindError   Kind = "error"
)

// ErrorPrefix opens the text of every failed execution.
const ErrorPrefix = "Error in Python calculation: "

// NoOutput is the text of an execution that produced nothing.
const NoOutput = "Code executed successfully (no output)"

const truncatedSuffix = "\n... (output truncated)"

var truncationNote = regexp.MustCompile(`\n\(showing \d+ of \d+ rows\)$`)

// Observation is the bounded, user-safe result of one execution.
type Observation struct {
	Text string
	Kind Kind
	// Value is the structured result, when there is one.
	Value starlark.Value
	// Bindings holds the scalar variables the snippet left behind.
	Bindings map[string]starlark.Value
	// Fault is set when Kind is KindError.
	Fault fault.Kind
	// Detail is the safe hint attached to a fault.
	Detail string
	// Code is the cleaned code that was run.
	Code string
}

// Failed reports whether the execution failed.
func (o Observation) Failed() bool { return o.Kind == KindError }

func failure(k fault.Kind, detail string) Observation {
	text := ErrorPrefix + fault.Message(k)
	if detail != "" {
		text += " Hint: " + detail
	}
	return Observation{Text: text, Kind: KindError, Fault: k, Detail: detail}
}

// describe renders a result value. Strings print bare, integral floats
// without ".0", frames and series as bounded table previews, and other
// containers as compact JSON.
func describe(v starlark.Value, rows, chars int) (string, Kind) {
	switch val := v.(type) {
	case starlark.String:
		return string(val), KindScalar
	case starlark.Float:
		return frame.FormatFloat(float64(val)), KindScalar
	case starlark.Int, starlark.Bool, starctx.Timestamp, starctx.Timedelta:
		return val.String(), KindScalar
	case *starctx.Frame:
		return starctx.FitFrame(val.Unwrap(), rows, chars), KindTable
	case *starctx.Series:
		return starctx.FitSeries(val.Unwrap(), rows, chars), KindTable
	case *starlark.Dict, *starlark.List, starlark.Tuple, *starlark.Set:
		if s, err := starctx.EncodeJSON(val, starctx.Compact); err == nil {
			return s, KindMapping
		}
	}
	return v.String(), KindText
}

func isScalar(v starlark.Value) bool {
	switch v.(type) {
	case starlark.String, starlark.Float, starlark.Int, starlark.Bool, starctx.Timestamp, starctx.Timedelta:
		return true
	}
	return false
}

// Bound caps text at limit runes, marking the cut. A trailing row-count
// note survives the cut.
func Bound(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	note := ""
	if loc := truncationNote.FindStringIndex(text); loc != nil {
		note = text[loc[0]:]
		if limit > utf8.RuneCountInString(note)+len(truncatedSuffix) {
			text = text[:loc[0]]
			limit -= utf8.RuneCountInString(note)
		} else {
			note = ""
		}
	}
	runes := []rune(text)
	if limit <= len(truncatedSuffix) {
		return string(runes[:limit])
	}
	return string(runes[:limit-len(truncatedSuffix)]) + truncatedSuffix + note
}
