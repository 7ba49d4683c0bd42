package starlark

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// strAccessor is Series.str.
type strAccessor struct {
	s *Series
}

var strMethods map[string]*starlark.Builtin

func (a *strAccessor) String() string        { return "<StringMethods>" }
func (a *strAccessor) Type() string          { return "StringMethods" }
func (a *strAccessor) Freeze()               {}
func (a *strAccessor) Truth() starlark.Bool  { return starlark.True }
func (a *strAccessor) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: StringMethods") }
func (a *strAccessor) AttrNames() []string   { return attrNames(nil, strMethods) }

func (a *strAccessor) Attr(name string) (starlark.Value, error) {
	if m, ok := strMethods[name]; ok {
		return m.BindReceiver(a), nil
	}
	return nil, nil
}

// Get implements s.str[i], indexing into each string or tuple.
func (a *strAccessor) Get(k starlark.Value) (starlark.Value, bool, error) {
	i, err := starlark.AsInt32(k)
	if err != nil {
		return nil, false, fmt.Errorf("str[]: index must be an int")
	}
	out, err := a.s.s.Map(func(v any) (any, error) {
		switch val := v.(type) {
		case string:
			r := []rune(val)
			j := i
			if j < 0 {
				j += len(r)
			}
			if j < 0 || j >= len(r) {
				return nil, nil
			}
			return string(r[j]), nil
		case []any:
			j := i
			if j < 0 {
				j += len(val)
			}
			if j < 0 || j >= len(val) {
				return nil, nil
			}
			return val[j], nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, false, err
	}
	return a.s.derive(out), true, nil
}

// mapStrings applies fn to every string value; other values become missing.
func (a *strAccessor) mapStrings(fn func(string) (any, error)) (starlark.Value, error) {
	out, err := a.s.s.Map(func(v any) (any, error) {
		str, ok := v.(string)
		if !ok {
			return nil, nil
		}
		return fn(str)
	})
	if err != nil {
		return nil, err
	}
	return a.s.derive(out), nil
}

func strTransform(name string, fn func(string) string) *starlark.Builtin {
	return method(name, func(_ *starlark.Thread, a *strAccessor, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var chars starlark.Value = starlark.None
		if err := unpack(name, args, kwargs, "to_strip?", &chars); err != nil {
			return nil, err
		}
		cut, _ := starlark.AsString(chars)
		return a.mapStrings(func(s string) (any, error) {
			if cut != "" {
				switch name {
				case "strip":
					return strings.Trim(s, cut), nil
				case "lstrip":
					return strings.TrimLeft(s, cut), nil
				case "rstrip":
					return strings.TrimRight(s, cut), nil
				}
			}
			return fn(s), nil
		})
	})
}

func titleCase(s string) string {
	var b strings.Builder
	prev := ' '
	for _, r := range s {
		if unicode.IsLetter(prev) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToTitle(r))
		}
		prev = r
	}
	return b.String()
}

func strPredicate(name string, fn func(s, pat string) bool) *starlark.Builtin {
	return method(name, func(_ *starlark.Thread, a *strAccessor, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var pat string
		var na starlark.Value = starlark.False
		if err := unpack(name, args, kwargs, "pat", &pat, "na?", &na); err != nil {
			return nil, err
		}
		missing := bool(na.Truth())
		out, err := a.s.s.Map(func(v any) (any, error) {
			str, ok := v.(string)
			if !ok {
				return missing, nil
			}
			return fn(str, pat), nil
		})
		if err != nil {
			return nil, err
		}
		return a.s.derive(out), nil
	})
}

func init() {
	strMethods = map[string]*starlark.Builtin{
		"lower":      strTransform("lower", strings.ToLower),
		"upper":      strTransform("upper", strings.ToUpper),
		"strip":      strTransform("strip", strings.TrimSpace),
		"lstrip":     strTransform("lstrip", func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }),
		"rstrip":     strTransform("rstrip", func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }),
		"title":      strTransform("title", titleCase),
		"startswith": strPredicate("startswith", strings.HasPrefix),
		"endswith":   strPredicate("endswith", strings.HasSuffix),
		"len": method("len", func(_ *starlark.Thread, a *strAccessor, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack("len", args, kwargs); err != nil {
				return nil, err
			}
			return a.mapStrings(func(s string) (any, error) { return int64(len([]rune(s))), nil })
		}),
		"contains": method("contains", func(_ *starlark.Thread, a *strAccessor, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var pat string
			caseSensitive, regex := true, true
			var na starlark.Value = starlark.False
			if err := unpack("contains", args, kwargs, "pat", &pat, "case?", &caseSensitive, "na?", &na, "regex?", &regex); err != nil {
				return nil, err
			}
			expr := pat
			if !regex {
				expr = regexp.QuoteMeta(pat)
			}
			if !caseSensitive {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("contains: %w", err)
			}
			missing := bool(na.Truth())
			out, err := a.s.s.Map(func(v any) (any, error) {
				str, ok := v.(string)
				if !ok {
					return missing, nil
				}
				return re.MatchString(str), nil
			})
			if err != nil {
				return nil, err
			}
			return a.s.derive(out), nil
		}),
		"replace": method("replace", func(_ *starlark.Thread, a *strAccessor, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var pat, repl string
			regex := false
			if err := unpack("replace", args, kwargs, "pat", &pat, "repl", &repl, "regex?", &regex); err != nil {
				return nil, err
			}
			if !regex {
				return a.mapStrings(func(s string) (any, error) { return strings.ReplaceAll(s, pat, repl), nil })
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				return nil, fmt.Errorf("replace: %w", err)
			}
			return a.mapStrings(func(s string) (any, error) { return re.ReplaceAllString(s, repl), nil })
		}),
		"split": method("split", func(_ *starlark.Thread, a *strAccessor, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var sep starlark.Value = starlark.None
			if err := unpack("split", args, kwargs, "pat?", &sep); err != nil {
				return nil, err
			}
			delim, _ := starlark.AsString(sep)
			return a.mapStrings(func(s string) (any, error) {
				var parts []string
				if delim == "" {
					parts = strings.Fields(s)
				} else {
					parts = strings.Split(s, delim)
				}
				out := make([]any, len(parts))
				for i, p := range parts {
					out[i] = p
				}
				return out, nil
			})
		}),
		"slice": method("slice", func(_ *starlark.Thread, a *strAccessor, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var start, stop starlark.Value = starlark.None, starlark.None
			if err := unpack("slice", args, kwargs, "start?", &start, "stop?", &stop); err != nil {
				return nil, err
			}
			return a.mapStrings(func(s string) (any, error) {
				r := []rune(s)
				lo, err := optInt(start, 0)
				if err != nil {
					return nil, err
				}
				hi, err := optInt(stop, len(r))
				if err != nil {
					return nil, err
				}
				lo, hi = clampRange(lo, len(r)), clampRange(hi, len(r))
				if lo >= hi {
					return "", nil
				}
				return string(r[lo:hi]), nil
			})
		}),
	}
}

func clampRange(i, n int) int {
	if i < 0 {
		i += n
	}
	return max(0, min(i, n))
}

// dtAccessor is Series.dt.
type dtAccessor struct {
	s *Series
}

var (
	dtAttrs   = []string{"year", "month", "day", "hour", "minute", "second", "dayofweek", "weekday", "quarter", "date", "days", "seconds"}
	dtMethods map[string]*starlark.Builtin
)

func (a *dtAccessor) String() string        { return "<DatetimeProperties>" }
func (a *dtAccessor) Type() string          { return "DatetimeProperties" }
func (a *dtAccessor) Freeze()               {}
func (a *dtAccessor) Truth() starlark.Bool  { return starlark.True }
func (a *dtAccessor) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: DatetimeProperties") }
func (a *dtAccessor) AttrNames() []string   { return attrNames(dtAttrs, dtMethods) }

var dtFields = map[string]func(time.Time) any{
	"year":      func(t time.Time) any { return int64(t.Year()) },
	"month":     func(t time.Time) any { return int64(t.Month()) },
	"day":       func(t time.Time) any { return int64(t.Day()) },
	"hour":      func(t time.Time) any { return int64(t.Hour()) },
	"minute":    func(t time.Time) any { return int64(t.Minute()) },
	"second":    func(t time.Time) any { return int64(t.Second()) },
	"dayofweek": func(t time.Time) any { return int64(pyWeekday(t)) },
	"weekday":   func(t time.Time) any { return int64(pyWeekday(t)) },
	"quarter":   func(t time.Time) any { return int64((int(t.Month())-1)/3 + 1) },
	"date":      func(t time.Time) any { return truncateDay(t) },
}

func (a *dtAccessor) Attr(name string) (starlark.Value, error) {
	switch name {
	case "days":
		return a.mapDurations(func(d time.Duration) any { return floorDays(d) })
	case "seconds":
		return a.mapDurations(func(d time.Duration) any {
			return int64((d - time.Duration(floorDays(d))*24*time.Hour) / time.Second)
		})
	}
	if fn, ok := dtFields[name]; ok {
		return a.mapTimes(fn)
	}
	if m, ok := dtMethods[name]; ok {
		return m.BindReceiver(a), nil
	}
	return nil, nil
}

func (a *dtAccessor) mapTimes(fn func(time.Time) any) (starlark.Value, error) {
	out, err := a.s.s.Map(func(v any) (any, error) {
		switch val := v.(type) {
		case nil:
			return nil, nil
		case time.Time:
			return fn(val), nil
		}
		return nil, fmt.Errorf("can only use .dt accessor with datetime values, got %s", frame.FormatValue(v))
	})
	if err != nil {
		return nil, err
	}
	return a.s.derive(out), nil
}

func (a *dtAccessor) mapDurations(fn func(time.Duration) any) (starlark.Value, error) {
	out, err := a.s.s.Map(func(v any) (any, error) {
		switch val := v.(type) {
		case nil:
			return nil, nil
		case time.Duration:
			return fn(val), nil
		}
		return nil, fmt.Errorf("can only use .dt.days with timedelta values, got %s", frame.FormatValue(v))
	})
	if err != nil {
		return nil, err
	}
	return a.s.derive(out), nil
}

func dtTimeMethod(name string, fn func(time.Time) any) *starlark.Builtin {
	return method(name, func(_ *starlark.Thread, a *dtAccessor, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := unpack(name, args, kwargs); err != nil {
			return nil, err
		}
		return a.mapTimes(fn)
	})
}

func init() {
	dtMethods = map[string]*starlark.Builtin{
		"day_name":   dtTimeMethod("day_name", func(t time.Time) any { return t.Weekday().String() }),
		"month_name": dtTimeMethod("month_name", func(t time.Time) any { return t.Month().String() }),
		"normalize":  dtTimeMethod("normalize", func(t time.Time) any { return truncateDay(t) }),
		"strftime": method("strftime", func(_ *starlark.Thread, a *dtAccessor, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var format string
			if err := unpack("strftime", args, kwargs, "date_format", &format); err != nil {
				return nil, err
			}
			return a.mapTimes(func(t time.Time) any { return Strftime(t, format) })
		}),
		"to_period": method("to_period", func(_ *starlark.Thread, a *dtAccessor, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			freq := "M"
			if err := unpack("to_period", args, kwargs, "freq?", &freq); err != nil {
				return nil, err
			}
			var layout func(time.Time) any
			switch strings.ToUpper(freq) {
			case "M", "ME":
				layout = func(t time.Time) any { return t.Format("2006-01") }
			case "Y", "A", "YE":
				layout = func(t time.Time) any { return t.Format("2006") }
			case "Q", "QE":
				layout = func(t time.Time) any { return fmt.Sprintf("%dQ%d", t.Year(), (int(t.Month())-1)/3+1) }
			case "D":
				layout = func(t time.Time) any { return t.Format("2006-01-02") }
			default:
				return nil, fmt.Errorf("to_period: unsupported frequency %q", freq)
			}
			return a.mapTimes(layout)
		}),
		"total_seconds": method("total_seconds", func(_ *starlark.Thread, a *dtAccessor, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack("total_seconds", args, kwargs); err != nil {
				return nil, err
			}
			return a.mapDurations(func(d time.Duration) any { return d.Seconds() })
		}),
	}
}

// seriesILoc is Series.iloc.
type seriesILoc struct {
	s *Series
}

var (
	_ starlark.Sliceable = (*seriesILoc)(nil)
	_ starlark.Mapping   = (*seriesLoc)(nil)
	_ starlark.Sliceable = (*frameILoc)(nil)
	_ starlark.HasSetKey = (*frameLoc)(nil)
)

func (l *seriesILoc) String() string        { return "<iloc>" }
func (l *seriesILoc) Type() string          { return "iLocIndexer" }
func (l *seriesILoc) Freeze()               {}
func (l *seriesILoc) Truth() starlark.Bool  { return starlark.True }
func (l *seriesILoc) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: iLocIndexer") }
func (l *seriesILoc) Len() int              { return l.s.s.Len() }
func (l *seriesILoc) Index(i int) starlark.Value {
	return CellToValue(l.s.s.At(i))
}

func (l *seriesILoc) Slice(start, end, step int) starlark.Value {
	rows := sliceRows(start, end, step)
	vals := make([]any, len(rows))
	idx := make([]any, len(rows))
	for i, r := range rows {
		vals[i], idx[i] = l.s.s.At(r), l.s.s.Label(r)
	}
	return l.s.derive(frame.NewSeries(l.s.s.Name(), vals, idx))
}

// sliceRows expands a normalized slice into row positions.
func sliceRows(start, end, step int) []int {
	var rows []int
	if step > 0 {
		for i := start; i < end; i += step {
			rows = append(rows, i)
		}
	} else {
		for i := start; i > end; i += step {
			rows = append(rows, i)
		}
	}
	return rows
}

// seriesLoc is Series.loc.
type seriesLoc struct {
	s *Series
}

func (l *seriesLoc) String() string        { return "<loc>" }
func (l *seriesLoc) Type() string          { return "LocIndexer" }
func (l *seriesLoc) Freeze()               {}
func (l *seriesLoc) Truth() starlark.Bool  { return starlark.True }
func (l *seriesLoc) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: LocIndexer") }

func (l *seriesLoc) Get(k starlark.Value) (starlark.Value, bool, error) {
	if mask, ok := k.(*Series); ok {
		out, err := l.s.s.Filter(mask.s)
		if err != nil {
			return nil, false, err
		}
		return l.s.derive(out), true, nil
	}
	c, err := ValueToCell(k)
	if err != nil {
		return nil, false, err
	}
	v, ok := l.s.s.Get(c)
	if !ok {
		return nil, false, nil
	}
	return CellToValue(v), true, nil
}

// frameILoc is DataFrame.iloc.
type frameILoc struct {
	f *Frame
}

func (l *frameILoc) String() string        { return "<iloc>" }
func (l *frameILoc) Type() string          { return "iLocIndexer" }
func (l *frameILoc) Freeze()               {}
func (l *frameILoc) Truth() starlark.Bool  { return starlark.True }
func (l *frameILoc) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: iLocIndexer") }
func (l *frameILoc) Len() int              { return l.f.df.Len() }

func (l *frameILoc) Index(i int) starlark.Value {
	row, err := l.f.df.ILoc(i)
	if err != nil {
		return starlark.None
	}
	return l.f.rt.series(row)
}

func (l *frameILoc) Slice(start, end, step int) starlark.Value {
	rows := sliceRows(start, end, step)
	if step == 1 {
		return l.f.rt.frame(l.f.df.Head(max(end, 0)).Tail(max(end-start, 0)))
	}
	parts := make([]*frame.DataFrame, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, l.f.df.Head(r+1).Tail(1))
	}
	if len(parts) == 0 {
		return l.f.rt.frame(l.f.df.Head(0))
	}
	df, err := frame.Concat(parts...)
	if err != nil {
		return starlark.None
	}
	return l.f.rt.frame(df)
}

// frameLoc is DataFrame.loc. It supports df.loc[mask], df.loc[label],
// df.loc[mask, column] and assignment through df.loc[mask, column] = value.
type frameLoc struct {
	f *Frame
}

func (l *frameLoc) String() string        { return "<loc>" }
func (l *frameLoc) Type() string          { return "LocIndexer" }
func (l *frameLoc) Freeze()               {}
func (l *frameLoc) Truth() starlark.Bool  { return starlark.True }
func (l *frameLoc) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: LocIndexer") }

func (l *frameLoc) rows(k starlark.Value) (*frame.DataFrame, error) {
	if mask, ok := k.(*Series); ok {
		return l.f.df.Filter(mask.s)
	}
	c, err := ValueToCell(k)
	if err != nil {
		return nil, err
	}
	key := frame.FormatValue(c)
	index := l.f.df.Index()
	pos := make([]any, len(index))
	for i, lbl := range index {
		pos[i] = frame.FormatValue(lbl) == key
	}
	df, err := l.f.df.Filter(frame.NewSeries("", pos, nil))
	if err != nil {
		return nil, err
	}
	if df.Len() == 0 {
		return nil, fmt.Errorf("key %s not in index", frame.FormatValue(c))
	}
	return df, nil
}

func (l *frameLoc) Get(k starlark.Value) (starlark.Value, bool, error) {
	rowKey, cols := k, starlark.Value(nil)
	if t, ok := k.(starlark.Tuple); ok && len(t) == 2 {
		rowKey, cols = t[0], t[1]
	}
	df, err := l.rows(rowKey)
	if err != nil {
		return nil, false, err
	}
	if _, isMask := rowKey.(*Series); !isMask && cols == nil && df.Len() == 1 {
		row, err := df.ILoc(0)
		if err != nil {
			return nil, false, err
		}
		return l.f.rt.series(row), true, nil
	}
	if cols == nil {
		return l.f.rt.frame(df), true, nil
	}
	if name, ok := cols.(starlark.String); ok {
		col, err := df.Column(string(name))
		if err != nil {
			return nil, false, err
		}
		if _, isMask := rowKey.(*Series); !isMask && col.Len() == 1 {
			return CellToValue(col.At(0)), true, nil
		}
		return l.f.rt.series(col), true, nil
	}
	names, err := stringsOf(cols)
	if err != nil {
		return nil, false, err
	}
	sel, err := df.Select(names...)
	if err != nil {
		return nil, false, err
	}
	return l.f.rt.frame(sel), true, nil
}

// SetKey assigns value to column for the rows selected by a mask.
func (l *frameLoc) SetKey(k, v starlark.Value) error {
	t, ok := k.(starlark.Tuple)
	if !ok || len(t) != 2 {
		return fmt.Errorf("loc assignment needs a row mask and a column")
	}
	mask, ok := t[0].(*Series)
	if !ok {
		return fmt.Errorf("loc assignment needs a boolean row mask")
	}
	name, ok := t[1].(starlark.String)
	if !ok {
		return fmt.Errorf("loc assignment column must be a string")
	}
	if l.f.frozen {
		return fmt.Errorf("cannot assign to a frozen DataFrame")
	}
	if mask.s.Len() != l.f.df.Len() {
		return fmt.Errorf("loc assignment mask has %d values for %d rows", mask.s.Len(), l.f.df.Len())
	}
	fill, err := ValueToCell(v)
	if err != nil {
		return err
	}
	existing := make([]any, l.f.df.Len())
	if col, err := l.f.df.Column(string(name)); err == nil {
		existing = col.Values()
	}
	for i := range existing {
		if b, _ := mask.s.At(i).(bool); b {
			existing[i] = fill
		}
	}
	df, err := l.f.df.WithColumn(string(name), frame.NewSeries(string(name), existing, l.f.df.Index()))
	if err != nil {
		return err
	}
	l.f.df = df
	return nil
}
