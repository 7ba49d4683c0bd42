package starlark

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// GroupBy is the result of DataFrame.groupby.
type GroupBy struct {
	rt      *Runtime
	g       *frame.GroupBy
	asIndex bool
}

var (
	_ starlark.HasAttrs = (*GroupBy)(nil)
	_ starlark.Mapping  = (*GroupBy)(nil)
	_ starlark.Iterable = (*GroupBy)(nil)
)

func (g *GroupBy) String() string {
	return fmt.Sprintf("<DataFrameGroupBy by %v, %d groups>", g.g.Keys(), g.g.NGroups())
}
func (g *GroupBy) Type() string          { return "DataFrameGroupBy" }
func (g *GroupBy) Freeze()               {}
func (g *GroupBy) Truth() starlark.Bool  { return g.g.NGroups() > 0 }
func (g *GroupBy) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: DataFrameGroupBy") }

// Iterate yields (label, DataFrame) pairs.
func (g *GroupBy) Iterate() starlark.Iterator {
	labels, frames := g.g.Frames()
	values := make([]starlark.Value, len(labels))
	for i := range labels {
		values[i] = starlark.Tuple{CellToValue(labels[i]), g.rt.frame(frames[i])}
	}
	return &valueIterator{values: values}
}

// Get implements g['col'] and g[['a', 'b']].
func (g *GroupBy) Get(k starlark.Value) (starlark.Value, bool, error) {
	if name, ok := k.(starlark.String); ok {
		gs, err := g.g.Column(string(name))
		if err != nil {
			return nil, false, err
		}
		return &GroupedSeries{parent: g, gs: gs}, true, nil
	}
	names, err := stringsOf(k)
	if err != nil {
		return nil, false, err
	}
	sub, err := g.g.Select(names...)
	if err != nil {
		return nil, false, err
	}
	return &GroupBy{rt: g.rt, g: sub, asIndex: g.asIndex}, true, nil
}

// framed wraps an aggregated frame, keeping keys in the index unless the
// group-by was created with as_index=False.
func (g *GroupBy) framed(df *frame.DataFrame) (starlark.Value, error) {
	f := &Frame{rt: g.rt, df: df, keys: g.g.Keys()}
	if g.asIndex {
		return f, nil
	}
	flat, err := f.resetIndex(false)
	if err != nil {
		return nil, err
	}
	return g.rt.frame(flat), nil
}

// seriesed wraps an aggregated series the same way.
func (g *GroupBy) seriesed(s *frame.Series) (starlark.Value, error) {
	if g.asIndex {
		return &Series{rt: g.rt, s: s, keys: g.g.Keys()}, nil
	}
	df, err := frame.ResetGroupIndex(g.g.Keys(), s)
	if err != nil {
		return nil, err
	}
	return g.rt.frame(df), nil
}

var groupByMethods map[string]*starlark.Builtin

func (g *GroupBy) AttrNames() []string { return attrNames([]string{"ngroups", "groups"}, groupByMethods) }

func (g *GroupBy) Attr(name string) (starlark.Value, error) {
	switch name {
	case "ngroups":
		return starlark.MakeInt(g.g.NGroups()), nil
	case "groups":
		labels, frames := g.g.Frames()
		d := starlark.NewDict(len(labels))
		for i, l := range labels {
			if err := d.SetKey(CellToValue(l), listOf(frames[i].Index())); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	if m, ok := groupByMethods[name]; ok {
		return m.BindReceiver(g), nil
	}
	if gs, err := g.g.Column(name); err == nil {
		return &GroupedSeries{parent: g, gs: gs}, nil
	}
	return nil, nil
}

func groupReduction(name string) *starlark.Builtin {
	return method(name, func(_ *starlark.Thread, g *GroupBy, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := unpack(name, args, kwargs); err != nil {
			return nil, err
		}
		df, err := g.g.Aggregate(name)
		if err != nil {
			return nil, err
		}
		return g.framed(df)
	})
}

// namedAggregation evaluates agg(total=('Arrears', 'sum'), ...).
func (g *GroupBy) namedAggregation(kwargs []starlark.Tuple) (starlark.Value, error) {
	names := make([]string, 0, len(kwargs))
	data := make([][]any, 0, len(kwargs))
	var index []any
	for _, kv := range kwargs {
		out := string(kv[0].(starlark.String))
		spec, ok := kv[1].(starlark.Tuple)
		if !ok || len(spec) != 2 {
			return nil, fmt.Errorf("agg: %s must be a (column, aggregation) tuple", out)
		}
		col, ok := starlark.AsString(spec[0])
		if !ok {
			return nil, fmt.Errorf("agg: %s column must be a string", out)
		}
		fn, ok := aggName(spec[1])
		if !ok {
			return nil, fmt.Errorf("agg: %s aggregation must be a name", out)
		}
		gs, err := g.g.Column(col)
		if err != nil {
			return nil, err
		}
		s, err := gs.Aggregate(fn)
		if err != nil {
			return nil, err
		}
		names = append(names, out)
		data = append(data, s.Values())
		index = s.Index()
	}
	df, err := frame.New(names, data, index)
	if err != nil {
		return nil, err
	}
	return g.framed(df)
}

func init() {
	groupByMethods = map[string]*starlark.Builtin{
		"sum":     groupReduction("sum"),
		"mean":    groupReduction("mean"),
		"median":  groupReduction("median"),
		"min":     groupReduction("min"),
		"max":     groupReduction("max"),
		"count":   groupReduction("count"),
		"nunique": groupReduction("nunique"),
		"std":     groupReduction("std"),
		"first":   groupReduction("first"),
		"last":    groupReduction("last"),
		"size": method("size", func(_ *starlark.Thread, g *GroupBy, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack("size", args, kwargs); err != nil {
				return nil, err
			}
			s := g.g.Size()
			if !g.asIndex {
				s = s.Rename("size")
			}
			return g.seriesed(s)
		}),
		"agg":       method("agg", groupAgg),
		"aggregate": method("aggregate", groupAgg),
		"get_group": method("get_group", func(_ *starlark.Thread, g *GroupBy, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var label starlark.Value
			if err := unpack("get_group", args, kwargs, "name", &label); err != nil {
				return nil, err
			}
			c, err := ValueToCell(label)
			if err != nil {
				return nil, err
			}
			df, ok := g.g.Group(c)
			if !ok {
				return nil, fmt.Errorf("get_group: no group %s", label.String())
			}
			return g.rt.frame(df), nil
		}),
		"apply": method("apply", func(thread *starlark.Thread, g *GroupBy, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var fn starlark.Callable
			if err := starlark.UnpackArgs("apply", args, kwargs, "func", &fn); err != nil {
				return nil, err
			}
			labels, frames := g.g.Frames()
			out := make([]any, len(labels))
			for i, df := range frames {
				r, err := starlark.Call(thread, fn, starlark.Tuple{g.rt.frame(df)}, nil)
				if err != nil {
					return nil, err
				}
				if out[i], err = ValueToCell(r); err != nil {
					return nil, fmt.Errorf("apply: the function must return a scalar: %w", err)
				}
			}
			return g.seriesed(frame.NewSeries("", out, labels))
		}),
	}
}

// groupAgg accepts a name, a {column: name} dict or named aggregations.
func groupAgg(_ *starlark.Thread, g *GroupBy, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 && len(kwargs) > 0 {
		return g.namedAggregation(kwargs)
	}
	var spec starlark.Value
	if err := starlark.UnpackArgs("agg", args, kwargs, "func", &spec); err != nil {
		return nil, err
	}
	if name, ok := aggName(spec); ok {
		df, err := g.g.Aggregate(name)
		if err != nil {
			return nil, err
		}
		return g.framed(df)
	}
	d, ok := spec.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("agg: expected a function name or a dict of column to function")
	}
	m := make(map[string]string, d.Len())
	order := make([]string, 0, d.Len())
	for _, item := range d.Items() {
		col, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("agg: column names must be strings")
		}
		fn, ok := aggName(item[1])
		if !ok {
			return nil, fmt.Errorf("agg: aggregation for %s must be a name", col)
		}
		m[col] = fn
		order = append(order, col)
	}
	df, err := g.g.AggregateMap(m, order)
	if err != nil {
		return nil, err
	}
	return g.framed(df)
}

// GroupedSeries is one column of a GroupBy.
type GroupedSeries struct {
	parent *GroupBy
	gs     *frame.GroupedSeries
}

var (
	_ starlark.HasAttrs = (*GroupedSeries)(nil)
	_ starlark.Iterable = (*GroupedSeries)(nil)
)

func (s *GroupedSeries) String() string {
	return fmt.Sprintf("<SeriesGroupBy %s>", s.gs.Name())
}
func (s *GroupedSeries) Type() string          { return "SeriesGroupBy" }
func (s *GroupedSeries) Freeze()               {}
func (s *GroupedSeries) Truth() starlark.Bool  { return starlark.True }
func (s *GroupedSeries) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: SeriesGroupBy") }

// Iterate yields (label, Series) pairs.
func (s *GroupedSeries) Iterate() starlark.Iterator {
	labels, series := s.gs.Groups()
	values := make([]starlark.Value, len(labels))
	for i := range labels {
		values[i] = starlark.Tuple{CellToValue(labels[i]), s.parent.rt.series(series[i])}
	}
	return &valueIterator{values: values}
}

var groupedSeriesMethods map[string]*starlark.Builtin

func (s *GroupedSeries) AttrNames() []string { return attrNames(nil, groupedSeriesMethods) }

func (s *GroupedSeries) Attr(name string) (starlark.Value, error) {
	if m, ok := groupedSeriesMethods[name]; ok {
		return m.BindReceiver(s), nil
	}
	return nil, nil
}

func (s *GroupedSeries) aggregate(fn string) (starlark.Value, error) {
	out, err := s.gs.Aggregate(fn)
	if err != nil {
		return nil, err
	}
	if fn == "size" {
		out = out.Rename("size")
	}
	return s.parent.seriesed(out)
}

func groupedReduction(name string) *starlark.Builtin {
	return method(name, func(_ *starlark.Thread, s *GroupedSeries, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := unpack(name, args, kwargs); err != nil {
			return nil, err
		}
		return s.aggregate(name)
	})
}

func init() {
	groupedSeriesMethods = map[string]*starlark.Builtin{
		"sum":       groupedReduction("sum"),
		"mean":      groupedReduction("mean"),
		"median":    groupedReduction("median"),
		"min":       groupedReduction("min"),
		"max":       groupedReduction("max"),
		"count":     groupedReduction("count"),
		"nunique":   groupedReduction("nunique"),
		"std":       groupedReduction("std"),
		"var":       groupedReduction("var"),
		"size":      groupedReduction("size"),
		"first":     groupedReduction("first"),
		"last":      groupedReduction("last"),
		"agg":       method("agg", groupedAgg),
		"aggregate": method("aggregate", groupedAgg),
		"apply": method("apply", func(thread *starlark.Thread, s *GroupedSeries, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var fn starlark.Callable
			if err := starlark.UnpackArgs("apply", args, kwargs, "func", &fn); err != nil {
				return nil, err
			}
			labels, series := s.gs.Groups()
			out := make([]any, len(labels))
			for i, part := range series {
				r, err := starlark.Call(thread, fn, starlark.Tuple{s.parent.rt.series(part)}, nil)
				if err != nil {
					return nil, err
				}
				if out[i], err = ValueToCell(r); err != nil {
					return nil, fmt.Errorf("apply: the function must return a scalar: %w", err)
				}
			}
			return s.parent.seriesed(frame.NewSeries(s.gs.Name(), out, labels))
		}),
	}
}

// groupedAgg accepts one aggregation name or a list of them.
func groupedAgg(_ *starlark.Thread, s *GroupedSeries, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var spec starlark.Value
	if err := starlark.UnpackArgs("agg", args, kwargs, "func", &spec); err != nil {
		return nil, err
	}
	if name, ok := aggName(spec); ok {
		return s.aggregate(name)
	}
	names, err := aggNames(spec)
	if err != nil {
		return nil, err
	}
	data := make([][]any, len(names))
	var index []any
	for i, n := range names {
		out, err := s.gs.Aggregate(n)
		if err != nil {
			return nil, err
		}
		data[i] = out.Values()
		index = out.Index()
	}
	df, err := frame.New(names, data, index)
	if err != nil {
		return nil, err
	}
	return s.parent.framed(df)
}
