package starlark

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// namespace is a callable value with attributes, such as datetime.datetime
// or pd.Timestamp.
type namespace struct {
	name  string
	call  func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)
	attrs starlark.StringDict
}

var (
	_ starlark.Callable = (*namespace)(nil)
	_ starlark.HasAttrs = (*namespace)(nil)
)

func (n *namespace) Name() string           { return n.name }
func (n *namespace) String() string         { return "<class '" + n.name + "'>" }
func (n *namespace) Type() string           { return "type" }
func (n *namespace) Freeze()                {}
func (n *namespace) Truth() starlark.Bool   { return starlark.True }
func (n *namespace) Hash() (uint32, error)  { return starlark.String(n.name).Hash() }
func (n *namespace) AttrNames() []string    { return n.attrs.Keys() }
func (n *namespace) Attr(name string) (starlark.Value, error) {
	return n.attrs[name], nil
}

func (n *namespace) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if n.call == nil {
		return nil, fmt.Errorf("%s is not callable", n.name)
	}
	return n.call(thread, args, kwargs)
}

// ModuleNames lists the modules a snippet may import.
var ModuleNames = []string{"pandas", "numpy", "math", "statistics", "json", "datetime"}

// modules returns the capability table: every module an analysis snippet can
// import, keyed by its Python name.
func (rt *Runtime) modules() map[string]starlark.Value {
	dt := rt.datetimeModule()
	return map[string]starlark.Value{
		"pandas":     rt.pandasModule(),
		"numpy":      rt.numpyModule(),
		"math":       mathModule(),
		"json":       jsonModule(),
		"statistics": statisticsModule(),
		"datetime":   dt,
	}
}

func (rt *Runtime) pandasModule() *starlarkstruct.Module {
	isna := starlark.NewBuiltin("isna", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "obj", &v); err != nil {
			return nil, err
		}
		if s, ok := v.(*Series); ok {
			return s.derive(s.s.IsNA()), nil
		}
		c, err := ValueToCell(v)
		if err != nil {
			return nil, err
		}
		return starlark.Bool(frame.IsNull(c)), nil
	})
	notna := starlark.NewBuiltin("notna", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		r, err := starlark.Call(thread, isna, args, kwargs)
		if err != nil {
			return nil, err
		}
		if s, ok := r.(*Series); ok {
			out, err := s.s.Not()
			if err != nil {
				return nil, err
			}
			return s.derive(out), nil
		}
		return !r.(starlark.Bool), nil
	})

	return &starlarkstruct.Module{
		Name: "pandas",
		Members: starlark.StringDict{
			"read_csv":     starlark.NewBuiltin("read_csv", rt.readCSV),
			"DataFrame":    &namespace{name: "DataFrame", call: rt.newDataFrame},
			"Series":       &namespace{name: "Series", call: rt.newSeries},
			"to_datetime":  starlark.NewBuiltin("to_datetime", rt.toDatetime),
			"to_numeric":   starlark.NewBuiltin("to_numeric", rt.toNumeric),
			"merge":        starlark.NewBuiltin("merge", rt.merge),
			"concat":       starlark.NewBuiltin("concat", rt.concat),
			"isna":         isna,
			"isnull":       isna,
			"notna":        notna,
			"notnull":      notna,
			"Timestamp":    rt.timestampType(),
			"Timedelta":    &namespace{name: "Timedelta", call: newTimedelta},
			"set_option":   starlark.NewBuiltin("set_option", noop),
			"reset_option": starlark.NewBuiltin("reset_option", noop),
			"NA":           starlark.Float(math.NaN()),
			"NaT":          starlark.None,
		},
	}
}

func noop(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return starlark.None, nil
}

func (rt *Runtime) readCSV(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var parseDates, usecols starlark.Value = starlark.None, starlark.None
	var encoding, sep starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"filepath_or_buffer", &name, "parse_dates?", &parseDates, "usecols?", &usecols,
		"encoding?", &encoding, "sep?", &sep); err != nil {
		return nil, err
	}
	if rt.reader == nil {
		return nil, fmt.Errorf("read_csv: no datasets are available")
	}
	df, err := rt.reader.Read(threadContext(thread), name)
	if err != nil {
		return nil, err
	}
	if usecols != starlark.None {
		cols, err := stringsOf(usecols)
		if err != nil {
			return nil, fmt.Errorf("read_csv: usecols: %w", err)
		}
		if df, err = df.Select(cols...); err != nil {
			return nil, err
		}
	}
	if parseDates != starlark.None && parseDates != starlark.False {
		cols, err := stringsOf(parseDates)
		if err != nil {
			return nil, fmt.Errorf("read_csv: parse_dates: %w", err)
		}
		for _, c := range cols {
			col, err := df.Column(c)
			if err != nil {
				return nil, err
			}
			if df, err = df.WithColumn(c, col.ToDatetime()); err != nil {
				return nil, err
			}
		}
	}
	return rt.frame(df), nil
}

func (rt *Runtime) newDataFrame(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data, columns starlark.Value = starlark.None, starlark.None
	if err := starlark.UnpackArgs("DataFrame", args, kwargs, "data?", &data, "columns?", &columns); err != nil {
		return nil, err
	}
	if list, ok := data.(*starlark.List); ok && columns != starlark.None && list.Len() > 0 {
		if _, isDict := list.Index(0).(*starlark.Dict); !isDict {
			return rowsFrame(rt, list, columns)
		}
	}
	f, err := frameFromValue(rt, data)
	if err != nil {
		return nil, err
	}
	if columns != starlark.None {
		cols, err := stringsOf(columns)
		if err != nil {
			return nil, err
		}
		df, err := f.df.Select(cols...)
		if err != nil {
			return nil, err
		}
		f = rt.frame(df)
	}
	return f, nil
}

// rowsFrame builds a frame from a list of row lists and column names.
func rowsFrame(rt *Runtime, rows *starlark.List, columns starlark.Value) (*Frame, error) {
	names, err := stringsOf(columns)
	if err != nil {
		return nil, err
	}
	data := make([][]any, len(names))
	for c := range data {
		data[c] = make([]any, rows.Len())
	}
	for r := 0; r < rows.Len(); r++ {
		cells, err := cellsOf(rows.Index(r))
		if err != nil {
			return nil, fmt.Errorf("DataFrame: row %d: %w", r, err)
		}
		if len(cells) != len(names) {
			return nil, fmt.Errorf("DataFrame: row %d has %d values for %d columns", r, len(cells), len(names))
		}
		for c, v := range cells {
			data[c][r] = v
		}
	}
	df, err := frame.New(names, data, nil)
	if err != nil {
		return nil, err
	}
	return rt.frame(df), nil
}

func (rt *Runtime) newSeries(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data, index starlark.Value = starlark.None, starlark.None
	name := ""
	if err := starlark.UnpackArgs("Series", args, kwargs, "data?", &data, "index?", &index, "name?", &name); err != nil {
		return nil, err
	}
	if d, ok := data.(*starlark.Dict); ok {
		labels := make([]any, 0, d.Len())
		values := make([]any, 0, d.Len())
		for _, item := range d.Items() {
			l, err := ValueToCell(item[0])
			if err != nil {
				return nil, err
			}
			v, err := ValueToCell(item[1])
			if err != nil {
				return nil, err
			}
			labels, values = append(labels, l), append(values, v)
		}
		return rt.series(frame.NewSeries(name, values, labels)), nil
	}
	var values []any
	if data != starlark.None {
		var err error
		if values, err = cellsOf(data); err != nil {
			return nil, fmt.Errorf("Series: %w", err)
		}
	}
	var labels []any
	if index != starlark.None {
		var err error
		if labels, err = cellsOf(index); err != nil {
			return nil, fmt.Errorf("Series: index: %w", err)
		}
		if len(labels) != len(values) {
			return nil, fmt.Errorf("Series: index has %d labels for %d values", len(labels), len(values))
		}
	}
	return rt.series(frame.NewSeries(name, values, labels)), nil
}

func (rt *Runtime) toDatetime(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var arg starlark.Value
	var format starlark.Value = starlark.None
	if err := unpack(b.Name(), args, kwargs, "arg", &arg, "format?", &format, "dayfirst?", new(bool)); err != nil {
		return nil, err
	}
	layout, _ := starlark.AsString(format)
	parse := func(v any) any {
		if layout != "" {
			if s, ok := v.(string); ok {
				if t, err := Strptime(s, layout); err == nil {
					return t
				}
				return nil
			}
		}
		if t, ok := frame.ParseDate(v); ok {
			return t
		}
		return nil
	}
	if s, ok := arg.(*Series); ok {
		out, err := s.s.Map(func(v any) (any, error) { return parse(v), nil })
		if err != nil {
			return nil, err
		}
		return s.derive(out), nil
	}
	c, err := ValueToCell(arg)
	if err != nil {
		return nil, err
	}
	t := parse(c)
	if t == nil {
		return nil, fmt.Errorf("to_datetime: could not parse %s", arg.String())
	}
	return CellToValue(t), nil
}

func (rt *Runtime) toNumeric(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var arg starlark.Value
	if err := unpack(b.Name(), args, kwargs, "arg", &arg, "downcast?", new(starlark.Value)); err != nil {
		return nil, err
	}
	if s, ok := arg.(*Series); ok {
		return s.derive(s.s.ToNumeric()), nil
	}
	c, err := ValueToCell(arg)
	if err != nil {
		return nil, err
	}
	out := frame.NewSeries("", []any{c}, nil).ToNumeric()
	if frame.IsNull(out.At(0)) {
		return nil, fmt.Errorf("to_numeric: unable to parse %s", arg.String())
	}
	return CellToValue(out.At(0)), nil
}

func (rt *Runtime) merge(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return mergeFrames(rt, args, kwargs)
}

func (rt *Runtime) concat(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var objs starlark.Iterable
	ignoreIndex := false
	if err := unpack(b.Name(), args, kwargs, "objs", &objs, "ignore_index?", &ignoreIndex); err != nil {
		return nil, err
	}
	var frames []*frame.DataFrame
	it := objs.Iterate()
	defer it.Done()
	var x starlark.Value
	for it.Next(&x) {
		switch v := x.(type) {
		case *Frame:
			frames = append(frames, v.df)
		case *Series:
			frames = append(frames, v.s.ToFrame())
		default:
			return nil, fmt.Errorf("concat: cannot concatenate %s", x.Type())
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("concat: no objects to concatenate")
	}
	df, err := frame.Concat(frames...)
	if err != nil {
		return nil, err
	}
	if ignoreIndex {
		df = df.ResetIndex(false)
	}
	return rt.frame(df), nil
}

func (rt *Runtime) timestampType() *namespace {
	now := starlark.NewBuiltin("now", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := unpack(b.Name(), args, kwargs, "tz?", new(starlark.Value)); err != nil {
			return nil, err
		}
		return Timestamp(rt.clock()), nil
	})
	today := starlark.NewBuiltin("today", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
			return nil, err
		}
		return Timestamp(truncateDay(rt.clock())), nil
	})
	return &namespace{
		name: "Timestamp",
		call: func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var v starlark.Value
			if err := starlark.UnpackArgs("Timestamp", args, kwargs, "ts_input", &v); err != nil {
				return nil, err
			}
			switch s, _ := starlark.AsString(v); strings.ToLower(s) {
			case "now":
				return Timestamp(rt.clock()), nil
			case "today":
				return Timestamp(truncateDay(rt.clock())), nil
			}
			if ts, ok := v.(Timestamp); ok {
				return ts, nil
			}
			c, err := ValueToCell(v)
			if err != nil {
				return nil, err
			}
			t, ok := frame.ParseDate(c)
			if !ok {
				return nil, fmt.Errorf("Timestamp: could not parse %s", v.String())
			}
			return Timestamp(t), nil
		},
		attrs: starlark.StringDict{"now": now, "today": today},
	}
}

// newTimedelta implements timedelta(days=0, seconds=0, minutes=0, hours=0,
// weeks=0) and Timedelta("7 days").
func newTimedelta(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 1 && len(kwargs) == 0 {
		if s, ok := starlark.AsString(args[0]); ok {
			return parseTimedelta(s)
		}
	}
	var days, seconds, minutes, hours, weeks starlark.Value
	if err := starlark.UnpackArgs("timedelta", args, kwargs,
		"days?", &days, "seconds?", &seconds, "microseconds?", new(starlark.Value),
		"milliseconds?", new(starlark.Value), "minutes?", &minutes, "hours?", &hours, "weeks?", &weeks); err != nil {
		return nil, err
	}
	var total float64
	for _, part := range []struct {
		v    starlark.Value
		unit time.Duration
	}{
		{days, 24 * time.Hour}, {seconds, time.Second}, {minutes, time.Minute}, {hours, time.Hour}, {weeks, 7 * 24 * time.Hour},
	} {
		if part.v == nil {
			continue
		}
		f, ok := starlark.AsFloat(part.v)
		if !ok {
			return nil, fmt.Errorf("timedelta: expected a number, got %s", part.v.Type())
		}
		total += f * float64(part.unit)
	}
	return Timedelta(time.Duration(total)), nil
}

func parseTimedelta(s string) (starlark.Value, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 2 {
		var n float64
		if _, err := fmt.Sscanf(fields[0], "%g", &n); err == nil {
			units := map[string]time.Duration{
				"day": 24 * time.Hour, "days": 24 * time.Hour, "d": 24 * time.Hour,
				"hour": time.Hour, "hours": time.Hour, "h": time.Hour,
				"minute": time.Minute, "minutes": time.Minute, "min": time.Minute,
				"second": time.Second, "seconds": time.Second, "s": time.Second,
				"week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour, "w": 7 * 24 * time.Hour,
			}
			if u, ok := units[fields[1]]; ok {
				return Timedelta(time.Duration(n * float64(u))), nil
			}
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return Timedelta(d), nil
	}
	return nil, fmt.Errorf("Timedelta: could not parse %q", s)
}

func (rt *Runtime) clock() time.Time {
	if rt.now != nil {
		return rt.now()
	}
	return time.Now()
}

func (rt *Runtime) datetimeModule() *starlarkstruct.Module {
	newDatetime := func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var year, month, day int
		var hour, minute, second int
		if err := starlark.UnpackArgs("datetime", args, kwargs,
			"year", &year, "month", &month, "day", &day, "hour?", &hour, "minute?", &minute, "second?", &second); err != nil {
			return nil, err
		}
		return Timestamp(time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)), nil
	}
	newDate := func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var year, month, day int
		if err := starlark.UnpackArgs("date", args, kwargs, "year", &year, "month", &month, "day", &day); err != nil {
			return nil, err
		}
		return Timestamp(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)), nil
	}
	clockFn := func(name string, truncate bool) *starlark.Builtin {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack(b.Name(), args, kwargs, "tz?", new(starlark.Value)); err != nil {
				return nil, err
			}
			t := rt.clock()
			if truncate {
				t = truncateDay(t)
			}
			return Timestamp(t), nil
		})
	}
	strptime := starlark.NewBuiltin("strptime", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s, format string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "date_string", &s, "format", &format); err != nil {
			return nil, err
		}
		t, err := Strptime(s, format)
		if err != nil {
			return nil, fmt.Errorf("time data %q does not match format %q", s, format)
		}
		return Timestamp(t), nil
	})
	fromISO := starlark.NewBuiltin("fromisoformat", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "date_string", &s); err != nil {
			return nil, err
		}
		t, ok := frame.ParseDate(s)
		if !ok {
			return nil, fmt.Errorf("invalid isoformat string: %q", s)
		}
		return Timestamp(t), nil
	})

	timedelta := &namespace{name: "timedelta", call: newTimedelta}
	date := &namespace{name: "date", call: newDate, attrs: starlark.StringDict{
		"today":         clockFn("today", true),
		"fromisoformat": fromISO,
	}}
	datetime := &namespace{name: "datetime", call: newDatetime, attrs: starlark.StringDict{
		"now":           clockFn("now", false),
		"today":         clockFn("today", false),
		"strptime":      strptime,
		"fromisoformat": fromISO,
		"date":          date,
		"timedelta":     timedelta,
	}}
	return &starlarkstruct.Module{
		Name: "datetime",
		Members: starlark.StringDict{
			"datetime":  datetime,
			"date":      date,
			"timedelta": timedelta,
		},
	}
}

// seriesOf accepts a Series, an iterable of numbers or a single number.
func seriesOf(v starlark.Value) (*frame.Series, error) {
	if s, ok := v.(*Series); ok {
		return s.s, nil
	}
	if _, ok := v.(starlark.Iterable); ok {
		cells, err := cellsOf(v)
		if err != nil {
			return nil, err
		}
		return frame.NewSeries("", cells, nil), nil
	}
	c, err := ValueToCell(v)
	if err != nil {
		return nil, err
	}
	return frame.NewSeries("", []any{c}, nil), nil
}

// elementwise applies fn to a number, each number of a list, or a Series.
func elementwise(name string, fn func(float64) any) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x); err != nil {
			return nil, err
		}
		apply := func(v any) (any, error) {
			if frame.IsNull(v) {
				return fn(math.NaN()), nil
			}
			f, ok := frame.ToFloat(v)
			if !ok {
				return nil, fmt.Errorf("%s: unsupported operand %s", name, frame.FormatValue(v))
			}
			return fn(f), nil
		}
		switch val := x.(type) {
		case *Series:
			out, err := val.s.Map(apply)
			if err != nil {
				return nil, err
			}
			return val.derive(out), nil
		case *starlark.List, starlark.Tuple:
			cells, err := cellsOf(val)
			if err != nil {
				return nil, err
			}
			for i, c := range cells {
				if cells[i], err = apply(c); err != nil {
					return nil, err
				}
			}
			return listOf(cells), nil
		}
		c, err := ValueToCell(x)
		if err != nil {
			return nil, err
		}
		r, err := apply(c)
		if err != nil {
			return nil, err
		}
		return CellToValue(r), nil
	})
}

// statistic reduces a sequence with fn.
func statistic(name string, fn func(s *frame.Series) any) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x starlark.Value
		if err := unpack(b.Name(), args, kwargs, "a", &x); err != nil {
			return nil, err
		}
		s, err := seriesOf(x)
		if err != nil {
			return nil, err
		}
		return CellToValue(fn(s)), nil
	})
}

// populationStd is the standard deviation with ddof=0, as numpy computes it.
func populationStd(s *frame.Series) any {
	n := float64(s.Count())
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return 0.0
	}
	return math.Sqrt(s.Var() * (n - 1) / n)
}

func populationVar(s *frame.Series) any {
	n := float64(s.Count())
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return 0.0
	}
	return s.Var() * (n - 1) / n
}

func (rt *Runtime) numpyModule() *starlarkstruct.Module {
	dtype := func(name string, conv func(float64) starlark.Value) *namespace {
		return &namespace{name: name, call: func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var x starlark.Value
			if err := starlark.UnpackArgs(name, args, kwargs, "x", &x); err != nil {
				return nil, err
			}
			f, ok := starlark.AsFloat(x)
			if !ok {
				return nil, fmt.Errorf("%s: expected a number, got %s", name, x.Type())
			}
			return conv(f), nil
		}}
	}
	toInt := func(f float64) starlark.Value { return starlark.MakeInt64(int64(f)) }
	toFloat := func(f float64) starlark.Value { return starlark.Float(f) }

	return &starlarkstruct.Module{
		Name: "numpy",
		Members: starlark.StringDict{
			"nan":     starlark.Float(math.NaN()),
			"inf":     starlark.Float(math.Inf(1)),
			"pi":      starlark.Float(math.Pi),
			"int64":   dtype("int64", toInt),
			"int32":   dtype("int32", toInt),
			"float64": dtype("float64", toFloat),
			"mean":    statistic("mean", func(s *frame.Series) any { return s.Mean() }),
			"average": statistic("average", func(s *frame.Series) any { return s.Mean() }),
			"median":  statistic("median", func(s *frame.Series) any { return s.Median() }),
			"std":     statistic("std", populationStd),
			"var":     statistic("var", populationVar),
			"sum":     statistic("sum", func(s *frame.Series) any { return s.Sum() }),
			"max":     statistic("max", func(s *frame.Series) any { return s.Max() }),
			"min":     statistic("min", func(s *frame.Series) any { return s.Min() }),
			"abs":     elementwise("abs", func(f float64) any { return math.Abs(f) }),
			"sqrt":    elementwise("sqrt", func(f float64) any { return math.Sqrt(f) }),
			"ceil":    elementwise("ceil", func(f float64) any { return math.Ceil(f) }),
			"floor":   elementwise("floor", func(f float64) any { return math.Floor(f) }),
			"log":     elementwise("log", func(f float64) any { return math.Log(f) }),
			"isnan":   elementwise("isnan", func(f float64) any { return math.IsNaN(f) }),
			"round": starlark.NewBuiltin("round", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var x starlark.Value
				decimals := 0
				if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &x, "decimals?", &decimals); err != nil {
					return nil, err
				}
				if s, ok := x.(*Series); ok {
					return s.derive(s.s.Round(decimals)), nil
				}
				f, ok := starlark.AsFloat(x)
				if !ok {
					return nil, fmt.Errorf("round: expected a number, got %s", x.Type())
				}
				p := math.Pow(10, float64(decimals))
				return starlark.Float(math.RoundToEven(f*p) / p), nil
			}),
			"percentile": starlark.NewBuiltin("percentile", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var x, qv starlark.Value
				if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &x, "q", &qv); err != nil {
					return nil, err
				}
				q, ok := starlark.AsFloat(qv)
				if !ok || q < 0 || q > 100 {
					return nil, fmt.Errorf("percentile: q must be between 0 and 100")
				}
				s, err := seriesOf(x)
				if err != nil {
					return nil, err
				}
				return starlark.Float(s.Quantile(q / 100)), nil
			}),
			"where": starlark.NewBuiltin("where", numpyWhere),
			"array": starlark.NewBuiltin("array", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var x starlark.Value
				if err := unpack(b.Name(), args, kwargs, "object", &x, "dtype?", new(starlark.Value)); err != nil {
					return nil, err
				}
				s, err := seriesOf(x)
				if err != nil {
					return nil, err
				}
				return rt.series(frame.NewSeries("", s.Values(), nil)), nil
			}),
			"unique": starlark.NewBuiltin("unique", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var x starlark.Value
				if err := starlark.UnpackArgs(b.Name(), args, kwargs, "ar", &x); err != nil {
					return nil, err
				}
				s, err := seriesOf(x)
				if err != nil {
					return nil, err
				}
				vals := s.Unique()
				sort.SliceStable(vals, func(i, j int) bool {
					c, _ := frame.Compare(vals[i], vals[j])
					return c < 0
				})
				return listOf(vals), nil
			}),
		},
	}
}

// numpyWhere implements np.where(cond, x, y) over a boolean Series.
func numpyWhere(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var cond, x, y starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "condition", &cond, "x", &x, "y", &y); err != nil {
		return nil, err
	}
	mask, ok := cond.(*Series)
	if !ok {
		if cond.Truth() {
			return x, nil
		}
		return y, nil
	}
	pick := func(v starlark.Value, i int) (any, error) {
		if s, ok := v.(*Series); ok {
			if s.s.Len() != mask.s.Len() {
				return nil, fmt.Errorf("where: operands have %d and %d values", mask.s.Len(), s.s.Len())
			}
			return s.s.At(i), nil
		}
		return ValueToCell(v)
	}
	out := make([]any, mask.s.Len())
	for i := range out {
		src := y
		if b, _ := mask.s.At(i).(bool); b {
			src = x
		}
		v, err := pick(src, i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return mask.derive(frame.NewSeries("", out, mask.s.Index())), nil
}

func mathModule() *starlarkstruct.Module {
	members := make(starlark.StringDict, len(starlarkmath.Module.Members)+4)
	for k, v := range starlarkmath.Module.Members {
		members[k] = v
	}
	members["inf"] = starlark.Float(math.Inf(1))
	members["nan"] = starlark.Float(math.NaN())
	members["isnan"] = starlark.NewBuiltin("isnan", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x); err != nil {
			return nil, err
		}
		f, ok := floatOf(x)
		if !ok {
			return nil, fmt.Errorf("isnan: expected a number, got %s", x.Type())
		}
		return starlark.Bool(math.IsNaN(f)), nil
	})
	members["isinf"] = starlark.NewBuiltin("isinf", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x); err != nil {
			return nil, err
		}
		f, ok := starlark.AsFloat(x)
		if !ok {
			return nil, fmt.Errorf("isinf: expected a number, got %s", x.Type())
		}
		return starlark.Bool(math.IsInf(f, 0)), nil
	})
	return &starlarkstruct.Module{Name: "math", Members: members}
}

func jsonModule() *starlarkstruct.Module {
	members := make(starlark.StringDict, len(json.Module.Members)+2)
	for k, v := range json.Module.Members {
		members[k] = v
	}
	members["dumps"] = starlark.NewBuiltin("dumps", jsonDumps)
	members["loads"] = json.Module.Members["decode"]
	return &starlarkstruct.Module{Name: "json", Members: members}
}

func statisticsModule() *starlarkstruct.Module {
	sample := func(name string, sqrt bool) *starlark.Builtin {
		return statistic(name, func(s *frame.Series) any {
			if s.Count() < 2 {
				return math.NaN()
			}
			if sqrt {
				return s.Std()
			}
			return s.Var()
		})
	}
	return &starlarkstruct.Module{
		Name: "statistics",
		Members: starlark.StringDict{
			"mean":      statistic("mean", func(s *frame.Series) any { return s.Mean() }),
			"fmean":     statistic("fmean", func(s *frame.Series) any { return s.Mean() }),
			"median":    statistic("median", func(s *frame.Series) any { return s.Median() }),
			"stdev":     sample("stdev", true),
			"variance":  sample("variance", false),
			"pstdev":    statistic("pstdev", populationStd),
			"pvariance": statistic("pvariance", populationVar),
			"mode": statistic("mode", func(s *frame.Series) any {
				counts := s.ValueCounts()
				if counts.Len() == 0 {
					return nil
				}
				return counts.Label(0)
			}),
		},
	}
}
