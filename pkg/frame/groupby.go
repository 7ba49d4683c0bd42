package frame

import (
	"fmt"
	"sort"
)

// GroupBy partitions the rows of a frame by one or more key columns.
// Groups are ordered by key, and rows with a missing key are dropped.
type GroupBy struct {
	df     *DataFrame
	keys   []string
	groups []group
}

type group struct {
	label any // scalar for one key, []any for several
	rows  []int
}

// GroupBy groups rows by the given key columns.
func (df *DataFrame) GroupBy(keys ...string) (*GroupBy, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("groupby requires at least one key")
	}
	cols := make([][]any, len(keys))
	for i, k := range keys {
		vals, ok := df.data[k]
		if !ok {
			return nil, &ColumnError{Name: k}
		}
		cols[i] = vals
	}

	byKey := make(map[string]int)
	var groups []group
rows:
	for r := 0; r < df.nrows; r++ {
		var label any
		if len(keys) == 1 {
			label = cols[0][r]
			if IsNull(label) {
				continue
			}
		} else {
			tuple := make([]any, len(keys))
			for i := range keys {
				if IsNull(cols[i][r]) {
					continue rows
				}
				tuple[i] = cols[i][r]
			}
			label = tuple
		}
		k := labelKey(label)
		gi, ok := byKey[k]
		if !ok {
			gi = len(groups)
			byKey[k] = gi
			groups = append(groups, group{label: label})
		}
		groups[gi].rows = append(groups[gi].rows, r)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return compareLabels(groups[i].label, groups[j].label) < 0
	})
	return &GroupBy{df: df, keys: keys, groups: groups}, nil
}

// Keys returns the key column names.
func (g *GroupBy) Keys() []string { return append([]string(nil), g.keys...) }

// NGroups returns the number of groups.
func (g *GroupBy) NGroups() int { return len(g.groups) }

func (g *GroupBy) labels() []any {
	out := make([]any, len(g.groups))
	for i, gr := range g.groups {
		out[i] = gr.label
	}
	return out
}

// Size counts rows per group.
func (g *GroupBy) Size() *Series {
	vals := make([]any, len(g.groups))
	for i, gr := range g.groups {
		vals[i] = int64(len(gr.rows))
	}
	return NewSeries("size", vals, g.labels())
}

// Column selects one column for aggregation.
func (g *GroupBy) Column(name string) (*GroupedSeries, error) {
	vals, ok := g.df.data[name]
	if !ok {
		return nil, &ColumnError{Name: name}
	}
	return &GroupedSeries{parent: g, name: name, values: vals}, nil
}

// Select narrows the aggregated columns.
func (g *GroupBy) Select(names ...string) (*GroupBy, error) {
	cols := append(append([]string(nil), g.keys...), names...)
	seen := make(map[string]bool)
	var uniq []string
	for _, c := range cols {
		if !seen[c] {
			seen[c] = true
			uniq = append(uniq, c)
		}
	}
	sub, err := g.df.Select(uniq...)
	if err != nil {
		return nil, err
	}
	return &GroupBy{df: sub, keys: g.keys, groups: g.groups}, nil
}

// Aggregate applies fn to every non-key column and returns a frame indexed by
// group label. Columns fn cannot reduce are skipped.
func (g *GroupBy) Aggregate(fn string) (*DataFrame, error) {
	isKey := make(map[string]bool, len(g.keys))
	for _, k := range g.keys {
		isKey[k] = true
	}
	var names []string
	var data [][]any
	for _, c := range g.df.columns {
		if isKey[c] {
			continue
		}
		gs := &GroupedSeries{parent: g, name: c, values: g.df.data[c]}
		if fn != "count" && fn != "nunique" && fn != "size" && fn != "first" && fn != "last" &&
			!(&Series{values: gs.values}).isNumeric() {
			continue
		}
		s, err := gs.Aggregate(fn)
		if err != nil {
			return nil, err
		}
		names = append(names, c)
		data = append(data, s.values)
	}
	if len(names) == 0 {
		return New(nil, nil, g.labels())
	}
	return New(names, data, g.labels())
}

// AggregateMap applies a different aggregation per column.
func (g *GroupBy) AggregateMap(spec map[string]string, order []string) (*DataFrame, error) {
	names := make([]string, 0, len(order))
	data := make([][]any, 0, len(order))
	for _, c := range order {
		gs, err := g.Column(c)
		if err != nil {
			return nil, err
		}
		s, err := gs.Aggregate(spec[c])
		if err != nil {
			return nil, err
		}
		names = append(names, c)
		data = append(data, s.values)
	}
	return New(names, data, g.labels())
}

// Frames returns each group's rows as a frame, keyed by group label.
func (g *GroupBy) Frames() ([]any, []*DataFrame) {
	frames := make([]*DataFrame, len(g.groups))
	for i, gr := range g.groups {
		frames[i] = g.df.take(gr.rows)
	}
	return g.labels(), frames
}

// Group returns the rows of the group with the given label.
func (g *GroupBy) Group(label any) (*DataFrame, bool) {
	k := labelKey(label)
	for _, gr := range g.groups {
		if labelKey(gr.label) == k {
			return g.df.take(gr.rows), true
		}
	}
	return nil, false
}

// GroupedSeries is one column of a GroupBy.
type GroupedSeries struct {
	parent *GroupBy
	name   string
	values []any
}

// Name returns the column name.
func (gs *GroupedSeries) Name() string { return gs.name }

// Aggregate reduces each group with a named aggregation and returns a Series
// indexed by group label.
func (gs *GroupedSeries) Aggregate(fn string) (*Series, error) {
	out := make([]any, len(gs.parent.groups))
	for i, gr := range gs.parent.groups {
		vals := make([]any, len(gr.rows))
		for j, r := range gr.rows {
			vals[j] = gs.values[r]
		}
		v, err := (&Series{name: gs.name, values: vals, index: rangeIndex(len(vals))}).Reduce(fn)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return NewSeries(gs.name, out, gs.parent.labels()), nil
}

// Groups returns each group's values as a Series, keyed by group label.
func (gs *GroupedSeries) Groups() ([]any, []*Series) {
	labels := gs.parent.labels()
	series := make([]*Series, len(gs.parent.groups))
	for i, gr := range gs.parent.groups {
		vals := make([]any, len(gr.rows))
		idx := make([]any, len(gr.rows))
		for j, r := range gr.rows {
			vals[j] = gs.values[r]
			idx[j] = gs.parent.df.index[r]
		}
		series[i] = NewSeries(gs.name, vals, idx)
	}
	return labels, series
}

// ResetGroupIndex spreads group labels back into key columns next to the
// aggregated values.
func ResetGroupIndex(keys []string, s *Series) (*DataFrame, error) {
	if len(keys) <= 1 {
		name := "index"
		if len(keys) == 1 {
			name = keys[0]
		}
		return s.ResetIndex(name), nil
	}
	names := append(append([]string(nil), keys...), s.name)
	data := make([][]any, len(names))
	for i := range data {
		data[i] = make([]any, s.Len())
	}
	for r, label := range s.index {
		tuple, _ := label.([]any)
		for k := range keys {
			if k < len(tuple) {
				data[k][r] = tuple[k]
			}
		}
		data[len(keys)][r] = s.values[r]
	}
	return New(names, data, nil)
}
