package starlark

import (
	"fmt"
	"slices"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// Frame wraps a frame.DataFrame. Frames are immutable underneath; column
// assignment swaps the wrapped pointer. keys names the index levels of a
// group-by result.
type Frame struct {
	rt     *Runtime
	df     *frame.DataFrame
	keys   []string
	frozen bool
}

var (
	_ starlark.HasAttrs    = (*Frame)(nil)
	_ starlark.HasSetKey   = (*Frame)(nil)
	_ starlark.HasSetField = (*Frame)(nil)
	_ starlark.Sequence    = (*Frame)(nil)
	_ starlark.Sliceable   = (*Frame)(nil)
)

// Unwrap returns the underlying frame.
func (f *Frame) Unwrap() *frame.DataFrame { return f.df }

func (f *Frame) String() string        { return RenderFrame(f.df, f.rt.previewRows) }
func (f *Frame) Type() string          { return "DataFrame" }
func (f *Frame) Freeze()               { f.frozen = true }
func (f *Frame) Truth() starlark.Bool  { return f.df.Len() > 0 }
func (f *Frame) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: DataFrame") }
func (f *Frame) Len() int              { return f.df.Len() }

func (f *Frame) Iterate() starlark.Iterator {
	cols := f.df.Columns()
	cells := make([]any, len(cols))
	for i, c := range cols {
		cells[i] = c
	}
	return &cellIterator{cells: cells}
}

// Index returns row i as a Series; df[a:b] slices rows positionally.
func (f *Frame) Index(i int) starlark.Value {
	return (&frameILoc{f: f}).Index(i)
}

func (f *Frame) Slice(start, end, step int) starlark.Value {
	return (&frameILoc{f: f}).Slice(start, end, step)
}

func (f *Frame) derive(df *frame.DataFrame) *Frame {
	return &Frame{rt: f.rt, df: df}
}

func (f *Frame) column(name string) (*Series, error) {
	col, err := f.df.Column(name)
	if err != nil {
		return nil, err
	}
	return f.rt.series(col), nil
}

// Get implements df['col'], df[['a', 'b']] and df[mask].
func (f *Frame) Get(k starlark.Value) (starlark.Value, bool, error) {
	switch key := k.(type) {
	case starlark.String:
		col, err := f.column(string(key))
		if err != nil {
			return nil, false, err
		}
		return col, true, nil
	case *Series:
		out, err := f.df.Filter(key.s)
		if err != nil {
			return nil, false, err
		}
		return f.derive(out), true, nil
	case *starlark.List, starlark.Tuple:
		names, err := stringsOf(key)
		if err != nil {
			return nil, false, err
		}
		out, err := f.df.Select(names...)
		if err != nil {
			return nil, false, err
		}
		return f.derive(out), true, nil
	}
	return nil, false, fmt.Errorf("DataFrame indices must be column names, lists of names or boolean masks, not %s", k.Type())
}

// SetKey implements df['col'] = value.
func (f *Frame) SetKey(k, v starlark.Value) error {
	name, ok := k.(starlark.String)
	if !ok {
		return fmt.Errorf("column name must be a string, not %s", k.Type())
	}
	if f.frozen {
		return fmt.Errorf("cannot assign to a frozen DataFrame")
	}
	df, err := f.withColumn(string(name), v)
	if err != nil {
		return err
	}
	f.df = df
	return nil
}

// withColumn adds a Series, list or scalar as a column.
func (f *Frame) withColumn(name string, v starlark.Value) (*frame.DataFrame, error) {
	switch val := v.(type) {
	case *Series:
		return f.df.WithColumn(name, val.s.Rename(name))
	case *starlark.List, starlark.Tuple, *Index:
		cells, err := cellsOf(val)
		if err != nil {
			return nil, err
		}
		return f.df.WithColumn(name, frame.NewSeries(name, cells, f.df.Index()))
	}
	c, err := ValueToCell(v)
	if err != nil {
		return nil, err
	}
	return f.df.WithScalar(name, c)
}

// SetField implements df.columns = [...].
func (f *Frame) SetField(name string, v starlark.Value) error {
	if name != "columns" {
		return starlark.NoSuchAttrError(fmt.Sprintf("cannot set DataFrame.%s", name))
	}
	names, err := stringsOf(v)
	if err != nil {
		return err
	}
	cols := f.df.Columns()
	if len(names) != len(cols) {
		return fmt.Errorf("length mismatch: frame has %d columns, %d names given", len(cols), len(names))
	}
	mapping := make(map[string]string, len(cols))
	for i, c := range cols {
		mapping[c] = names[i]
	}
	df, err := f.df.Rename(mapping)
	if err != nil {
		return err
	}
	f.df = df
	return nil
}

var frameAttrs = []string{"columns", "index", "shape", "size", "empty", "values", "dtypes", "loc", "iloc"}

var frameMethods map[string]*starlark.Builtin

func (f *Frame) AttrNames() []string {
	return attrNames(append(frameAttrs, f.df.Columns()...), frameMethods)
}

func (f *Frame) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		cols := f.df.Columns()
		labels := make([]any, len(cols))
		for i, c := range cols {
			labels[i] = c
		}
		return &Index{labels: labels}, nil
	case "index":
		return &Index{labels: f.df.Index()}, nil
	case "shape":
		r, c := f.df.Shape()
		return starlark.Tuple{starlark.MakeInt(r), starlark.MakeInt(c)}, nil
	case "size":
		r, c := f.df.Shape()
		return starlark.MakeInt(r * c), nil
	case "empty":
		return starlark.Bool(f.df.Len() == 0), nil
	case "values":
		rows := make([]starlark.Value, f.df.Len())
		for i := range rows {
			rows[i] = listOf(f.df.RowValues(i))
		}
		return starlark.NewList(rows), nil
	case "dtypes":
		cols := f.df.Columns()
		idx := make([]any, len(cols))
		kinds := make([]any, len(cols))
		for i, c := range cols {
			col, _ := f.df.Column(c)
			idx[i], kinds[i] = c, dtypeOf(col.Values())
		}
		return f.rt.series(frame.NewSeries("", kinds, idx)), nil
	case "loc":
		return &frameLoc{f: f}, nil
	case "iloc":
		return &frameILoc{f: f}, nil
	}
	if m, ok := frameMethods[name]; ok {
		return m.BindReceiver(f), nil
	}
	if f.df.HasColumn(name) {
		return f.column(name)
	}
	return nil, nil
}

// resetIndex moves group labels (or the plain index) back into columns.
func (f *Frame) resetIndex(drop bool) (*frame.DataFrame, error) {
	if drop {
		return f.df.ResetIndex(false), nil
	}
	if len(f.keys) == 0 {
		return f.df.ResetIndex(true), nil
	}
	index := f.df.Index()
	names := append([]string(nil), f.keys...)
	data := make([][]any, len(f.keys))
	for k := range data {
		data[k] = make([]any, len(index))
	}
	for r, label := range index {
		if len(f.keys) == 1 {
			data[0][r] = label
			continue
		}
		tuple, _ := label.([]any)
		for k := range f.keys {
			if k < len(tuple) {
				data[k][r] = tuple[k]
			}
		}
	}
	for _, c := range f.df.Columns() {
		if slices.Contains(names, c) {
			continue
		}
		col, _ := f.df.Column(c)
		names = append(names, c)
		data = append(data, col.Values())
	}
	return frame.New(names, data, nil)
}

func frameReduction(name string) *starlark.Builtin {
	return method(name, func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := unpack(name, args, kwargs); err != nil {
			return nil, err
		}
		s, err := f.df.Aggregate(name)
		if err != nil {
			return nil, err
		}
		return f.rt.series(s), nil
	})
}

func frameHeadTail(name string, fn func(df *frame.DataFrame, n int) *frame.DataFrame) *starlark.Builtin {
	return method(name, func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		n := 5
		if err := unpack(name, args, kwargs, "n?", &n); err != nil {
			return nil, err
		}
		out := f.derive(fn(f.df, n))
		out.keys = f.keys
		return out, nil
	})
}

func frameExtremes(name string, fn func(df *frame.DataFrame, n int, col string) (*frame.DataFrame, error)) *starlark.Builtin {
	return method(name, func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var n int
		var columns starlark.Value
		if err := unpack(name, args, kwargs, "n", &n, "columns", &columns); err != nil {
			return nil, err
		}
		cols, err := stringsOf(columns)
		if err != nil || len(cols) == 0 {
			return nil, fmt.Errorf("%s: columns must name a column", name)
		}
		df, err := fn(f.df, n, cols[0])
		if err != nil {
			return nil, err
		}
		return f.derive(df), nil
	})
}

func optSubset(v starlark.Value) ([]string, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	return stringsOf(v)
}

func init() {
	frameMethods = map[string]*starlark.Builtin{
		"head":      frameHeadTail("head", (*frame.DataFrame).Head),
		"tail":      frameHeadTail("tail", (*frame.DataFrame).Tail),
		"nlargest":  frameExtremes("nlargest", (*frame.DataFrame).NLargest),
		"nsmallest": frameExtremes("nsmallest", (*frame.DataFrame).NSmallest),
		"sum":       frameReduction("sum"),
		"mean":      frameReduction("mean"),
		"median":    frameReduction("median"),
		"min":       frameReduction("min"),
		"max":       frameReduction("max"),
		"count":     frameReduction("count"),
		"nunique":   frameReduction("nunique"),
		"std":       frameReduction("std"),
		"groupby": method("groupby", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var by starlark.Value
			asIndex := true
			if err := unpack("groupby", args, kwargs, "by", &by, "as_index?", &asIndex); err != nil {
				return nil, err
			}
			keys, err := stringsOf(by)
			if err != nil {
				return nil, fmt.Errorf("groupby: %w", err)
			}
			g, err := f.df.GroupBy(keys...)
			if err != nil {
				return nil, err
			}
			return &GroupBy{rt: f.rt, g: g, asIndex: asIndex}, nil
		}),
		"sort_values": method("sort_values", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var by starlark.Value
			var ascending starlark.Value = starlark.True
			if err := unpack("sort_values", args, kwargs, "by", &by, "ascending?", &ascending); err != nil {
				return nil, err
			}
			cols, err := stringsOf(by)
			if err != nil {
				return nil, err
			}
			asc, err := boolsOf(ascending, len(cols))
			if err != nil {
				return nil, err
			}
			df, err := f.df.SortValues(cols, asc)
			if err != nil {
				return nil, err
			}
			out := f.derive(df)
			out.keys = f.keys
			return out, nil
		}),
		"describe": method("describe", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack("describe", args, kwargs); err != nil {
				return nil, err
			}
			df, err := f.df.Describe()
			if err != nil {
				return nil, err
			}
			return f.derive(df), nil
		}),
		"drop_duplicates": method("drop_duplicates", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var subset starlark.Value = starlark.None
			if err := unpack("drop_duplicates", args, kwargs, "subset?", &subset); err != nil {
				return nil, err
			}
			cols, err := optSubset(subset)
			if err != nil {
				return nil, err
			}
			df, err := f.df.DropDuplicates(cols...)
			if err != nil {
				return nil, err
			}
			return f.derive(df), nil
		}),
		"dropna": method("dropna", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var subset starlark.Value = starlark.None
			if err := unpack("dropna", args, kwargs, "subset?", &subset); err != nil {
				return nil, err
			}
			cols, err := optSubset(subset)
			if err != nil {
				return nil, err
			}
			df, err := f.df.DropNA(cols...)
			if err != nil {
				return nil, err
			}
			return f.derive(df), nil
		}),
		"fillna": method("fillna", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var fill starlark.Value
			if err := unpack("fillna", args, kwargs, "value", &fill); err != nil {
				return nil, err
			}
			c, err := ValueToCell(fill)
			if err != nil {
				return nil, err
			}
			return f.derive(f.df.FillNA(c)), nil
		}),
		"reset_index": method("reset_index", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			drop := false
			if err := unpack("reset_index", args, kwargs, "drop?", &drop); err != nil {
				return nil, err
			}
			df, err := f.resetIndex(drop)
			if err != nil {
				return nil, err
			}
			return f.derive(df), nil
		}),
		"set_index": method("set_index", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var key string
			if err := unpack("set_index", args, kwargs, "keys", &key); err != nil {
				return nil, err
			}
			df, err := f.df.SetIndex(key)
			if err != nil {
				return nil, err
			}
			out := f.derive(df)
			out.keys = []string{key}
			return out, nil
		}),
		"rename": method("rename", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var columns *starlark.Dict
			if err := unpack("rename", args, kwargs, "columns", &columns); err != nil {
				return nil, err
			}
			mapping := make(map[string]string, columns.Len())
			for _, item := range columns.Items() {
				from, ok1 := starlark.AsString(item[0])
				to, ok2 := starlark.AsString(item[1])
				if !ok1 || !ok2 {
					return nil, fmt.Errorf("rename: column names must be strings")
				}
				mapping[from] = to
			}
			df, err := f.df.Rename(mapping)
			if err != nil {
				return nil, err
			}
			return f.derive(df), nil
		}),
		"drop": method("drop", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var labels, columns starlark.Value = starlark.None, starlark.None
			if err := unpack("drop", args, kwargs, "labels?", &labels, "columns?", &columns); err != nil {
				return nil, err
			}
			target := columns
			if target == starlark.None {
				target = labels
			}
			cols, err := stringsOf(target)
			if err != nil {
				return nil, fmt.Errorf("drop: %w", err)
			}
			df, err := f.df.Drop(cols...)
			if err != nil {
				return nil, err
			}
			return f.derive(df), nil
		}),
		"merge": method("merge", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return mergeFrames(f.rt, append(starlark.Tuple{f}, args...), kwargs)
		}),
		"assign": method("assign", func(thread *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(args) > 0 {
				return nil, fmt.Errorf("assign: only keyword arguments are accepted")
			}
			out := f.derive(f.df)
			for _, kv := range kwargs {
				name := string(kv[0].(starlark.String))
				v := kv[1]
				if fn, ok := v.(starlark.Callable); ok {
					r, err := starlark.Call(thread, fn, starlark.Tuple{out}, nil)
					if err != nil {
						return nil, err
					}
					v = r
				}
				df, err := out.withColumn(name, v)
				if err != nil {
					return nil, err
				}
				out.df = df
			}
			return out, nil
		}),
		"copy": method("copy", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var deep bool
			if err := unpack("copy", args, kwargs, "deep?", &deep); err != nil {
				return nil, err
			}
			out := f.derive(f.df)
			out.keys = f.keys
			return out, nil
		}),
		"to_dict": method("to_dict", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			orient := "dict"
			if err := unpack("to_dict", args, kwargs, "orient?", &orient); err != nil {
				return nil, err
			}
			return frameToDict(f.df, orient)
		}),
		"iterrows": method("iterrows", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack("iterrows", args, kwargs); err != nil {
				return nil, err
			}
			index := f.df.Index()
			rows := make([]starlark.Value, f.df.Len())
			for i := range rows {
				row, err := f.df.ILoc(i)
				if err != nil {
					return nil, err
				}
				rows[i] = starlark.Tuple{CellToValue(index[i]), f.rt.series(row)}
			}
			return starlark.NewList(rows), nil
		}),
		"apply": method("apply", func(thread *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var fn starlark.Callable
			axis := 0
			if err := starlark.UnpackArgs("apply", args, kwargs, "func", &fn, "axis?", &axis); err != nil {
				return nil, err
			}
			if axis != 1 {
				return nil, fmt.Errorf("apply: only axis=1 (row-wise) is supported")
			}
			out := make([]any, f.df.Len())
			for i := range out {
				row, err := f.df.ILoc(i)
				if err != nil {
					return nil, err
				}
				r, err := starlark.Call(thread, fn, starlark.Tuple{f.rt.series(row)}, nil)
				if err != nil {
					return nil, err
				}
				if out[i], err = ValueToCell(r); err != nil {
					return nil, err
				}
			}
			return f.rt.series(frame.NewSeries("", out, f.df.Index())), nil
		}),
		"to_string": method("to_string", func(_ *starlark.Thread, f *Frame, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var index bool
			if err := unpack("to_string", args, kwargs, "index?", &index); err != nil {
				return nil, err
			}
			return starlark.String(RenderFrame(f.df, f.df.Len())), nil
		}),
	}
}

// frameToDict renders a frame as a dict (orient "dict" or "list") or a list of
// records.
func frameToDict(df *frame.DataFrame, orient string) (starlark.Value, error) {
	switch orient {
	case "records":
		rows := make([]starlark.Value, df.Len())
		for i := range rows {
			d := starlark.NewDict(len(df.Columns()))
			values := df.RowValues(i)
			for c, name := range df.Columns() {
				if err := d.SetKey(starlark.String(name), CellToValue(values[c])); err != nil {
					return nil, err
				}
			}
			rows[i] = d
		}
		return starlark.NewList(rows), nil
	case "dict", "list", "index":
	default:
		return nil, fmt.Errorf("to_dict: unsupported orient %q", orient)
	}
	out := starlark.NewDict(len(df.Columns()))
	index := df.Index()
	if orient == "index" {
		for i, label := range index {
			row := starlark.NewDict(len(df.Columns()))
			values := df.RowValues(i)
			for c, name := range df.Columns() {
				if err := row.SetKey(starlark.String(name), CellToValue(values[c])); err != nil {
					return nil, err
				}
			}
			if err := out.SetKey(CellToValue(label), row); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	for _, name := range df.Columns() {
		col, _ := df.Column(name)
		var v starlark.Value
		if orient == "list" {
			v = listOf(col.Values())
		} else {
			d := starlark.NewDict(col.Len())
			for _, p := range col.Pairs() {
				if err := d.SetKey(CellToValue(p[0]), CellToValue(p[1])); err != nil {
					return nil, err
				}
			}
			v = d
		}
		if err := out.SetKey(starlark.String(name), v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// mergeFrames implements pd.merge(left, right, on=None, how="inner").
func mergeFrames(rt *Runtime, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var left, right *Frame
	var on starlark.Value = starlark.None
	how := frame.JoinInner
	if err := starlark.UnpackArgs("merge", args, kwargs, "left", &left, "right", &right, "on?", &on, "how?", &how); err != nil {
		return nil, err
	}
	keys, err := optSubset(on)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	df, err := frame.Merge(left.df, right.df, keys, how)
	if err != nil {
		return nil, err
	}
	return rt.frame(df), nil
}

// frameFromValue builds a frame from a dict of columns or a list of records.
func frameFromValue(rt *Runtime, data starlark.Value) (*Frame, error) {
	switch d := data.(type) {
	case starlark.NoneType:
		df, _ := frame.New(nil, nil, nil)
		return rt.frame(df), nil
	case *Frame:
		return rt.frame(d.df), nil
	case *starlark.Dict:
		var names []string
		var cols [][]any
		var index []any
		for _, item := range d.Items() {
			name, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("DataFrame: column names must be strings")
			}
			var cells []any
			if s, ok := item[1].(*Series); ok {
				cells = s.s.Values()
				if index == nil {
					index = s.s.Index()
				}
			} else {
				var err error
				if cells, err = cellsOf(item[1]); err != nil {
					return nil, fmt.Errorf("DataFrame: column %q: %w", name, err)
				}
			}
			names = append(names, name)
			cols = append(cols, cells)
		}
		if index != nil && len(cols) > 0 && len(index) != len(cols[0]) {
			index = nil
		}
		df, err := frame.New(names, cols, index)
		if err != nil {
			return nil, err
		}
		return rt.frame(df), nil
	case starlark.Iterable:
		return framesFromRecords(rt, d)
	}
	return nil, fmt.Errorf("DataFrame: unsupported data %s", data.Type())
}

func framesFromRecords(rt *Runtime, records starlark.Iterable) (*Frame, error) {
	var names []string
	seen := make(map[string]bool)
	var rows []map[string]any
	it := records.Iterate()
	defer it.Done()
	var x starlark.Value
	for it.Next(&x) {
		d, ok := x.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("DataFrame: records must be dicts, got %s", x.Type())
		}
		row := make(map[string]any, d.Len())
		for _, item := range d.Items() {
			name := KeyString(item[0])
			c, err := ValueToCell(item[1])
			if err != nil {
				return nil, err
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			row[name] = c
		}
		rows = append(rows, row)
	}
	cols := make([][]any, len(names))
	for c, name := range names {
		cols[c] = make([]any, len(rows))
		for r, row := range rows {
			cols[c][r] = row[name]
		}
	}
	df, err := frame.New(names, cols, nil)
	if err != nil {
		return nil, err
	}
	return rt.frame(df), nil
}

