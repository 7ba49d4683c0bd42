package frame

import (
	"fmt"
	"sort"
)

// DataFrame is an immutable table of named columns sharing one index.
type DataFrame struct {
	columns []string
	data    map[string][]any
	index   []any
	nrows   int
}

// New builds a frame from column names and column-major data. A nil index
// yields a positional index 0..n-1.
func New(columns []string, data [][]any, index []any) (*DataFrame, error) {
	if len(columns) != len(data) {
		return nil, fmt.Errorf("%w: %d column names for %d columns", ErrLengthMismatch, len(columns), len(data))
	}
	n := 0
	if len(data) > 0 {
		n = len(data[0])
	} else if index != nil {
		n = len(index)
	}
	df := &DataFrame{
		columns: append([]string(nil), columns...),
		data:    make(map[string][]any, len(columns)),
		nrows:   n,
	}
	for i, name := range columns {
		if len(data[i]) != n {
			return nil, fmt.Errorf("%w: column %q has %d values, want %d", ErrLengthMismatch, name, len(data[i]), n)
		}
		if _, dup := df.data[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		df.data[name] = data[i]
	}
	if index == nil {
		index = rangeIndex(n)
	}
	if len(index) != n {
		return nil, fmt.Errorf("%w: index has %d labels, want %d", ErrLengthMismatch, len(index), n)
	}
	df.index = index
	return df, nil
}

// FromRecords builds a frame from a header and rows of CSV text, inferring a
// type for every cell.
func FromRecords(header []string, rows [][]string) (*DataFrame, error) {
	data := make([][]any, len(header))
	for c := range header {
		data[c] = make([]any, len(rows))
	}
	for r, row := range rows {
		for c := range header {
			if c < len(row) {
				data[c][r] = ParseCell(row[c])
			}
		}
	}
	unifyNumericColumns(data)
	return New(header, data, nil)
}

// unifyNumericColumns promotes int cells to float in columns that mix ints
// and floats, matching how a CSV reader types a column as a whole.
func unifyNumericColumns(data [][]any) {
	for _, col := range data {
		hasFloat, hasInt := false, false
		for _, v := range col {
			switch v.(type) {
			case float64:
				hasFloat = true
			case int64:
				hasInt = true
			}
		}
		if hasFloat && hasInt {
			for i, v := range col {
				if n, ok := v.(int64); ok {
					col[i] = float64(n)
				}
			}
		}
	}
}

// Columns returns the column names in order.
func (df *DataFrame) Columns() []string { return append([]string(nil), df.columns...) }

// Len returns the number of rows.
func (df *DataFrame) Len() int { return df.nrows }

// Shape returns (rows, columns).
func (df *DataFrame) Shape() (int, int) { return df.nrows, len(df.columns) }

// Index returns a copy of the row labels.
func (df *DataFrame) Index() []any { return append([]any(nil), df.index...) }

// HasColumn reports whether the named column exists.
func (df *DataFrame) HasColumn(name string) bool {
	_, ok := df.data[name]
	return ok
}

// Column returns the named column as a Series.
func (df *DataFrame) Column(name string) (*Series, error) {
	vals, ok := df.data[name]
	if !ok {
		return nil, &ColumnError{Name: name}
	}
	return &Series{name: name, index: df.index, values: vals}, nil
}

// Select returns a frame with only the named columns, in the given order.
func (df *DataFrame) Select(names ...string) (*DataFrame, error) {
	data := make([][]any, len(names))
	for i, n := range names {
		vals, ok := df.data[n]
		if !ok {
			return nil, &ColumnError{Name: n}
		}
		data[i] = vals
	}
	return New(names, data, df.index)
}

// Drop returns a frame without the named columns.
func (df *DataFrame) Drop(names ...string) (*DataFrame, error) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		if !df.HasColumn(n) {
			return nil, &ColumnError{Name: n}
		}
		drop[n] = true
	}
	var keep []string
	for _, c := range df.columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	return df.Select(keep...)
}

// Rename returns a frame with columns renamed according to mapping.
func (df *DataFrame) Rename(mapping map[string]string) (*DataFrame, error) {
	names := make([]string, len(df.columns))
	data := make([][]any, len(df.columns))
	for i, c := range df.columns {
		names[i] = c
		if n, ok := mapping[c]; ok {
			names[i] = n
		}
		data[i] = df.data[c]
	}
	return New(names, data, df.index)
}

// WithColumn returns a frame with the column added or replaced.
func (df *DataFrame) WithColumn(name string, s *Series) (*DataFrame, error) {
	if s.Len() != df.nrows && !(len(df.columns) == 0 && df.nrows == 0) {
		return nil, fmt.Errorf("%w: column %q has %d values, frame has %d rows", ErrLengthMismatch, name, s.Len(), df.nrows)
	}
	names := df.Columns()
	data := make([][]any, 0, len(names)+1)
	replaced := false
	for _, c := range names {
		if c == name {
			data = append(data, s.values)
			replaced = true
		} else {
			data = append(data, df.data[c])
		}
	}
	if !replaced {
		names = append(names, name)
		data = append(data, s.values)
	}
	index := df.index
	if len(df.columns) == 0 {
		index = s.index
	}
	return New(names, data, index)
}

// WithScalar returns a frame with a constant column added or replaced.
func (df *DataFrame) WithScalar(name string, v any) (*DataFrame, error) {
	vals := make([]any, df.nrows)
	for i := range vals {
		vals[i] = v
	}
	return df.WithColumn(name, NewSeries(name, vals, df.index))
}

func (df *DataFrame) take(rows []int) *DataFrame {
	data := make([][]any, len(df.columns))
	for c, name := range df.columns {
		src := df.data[name]
		col := make([]any, len(rows))
		for i, r := range rows {
			col[i] = src[r]
		}
		data[c] = col
	}
	idx := make([]any, len(rows))
	for i, r := range rows {
		idx[i] = df.index[r]
	}
	out, _ := New(df.columns, data, idx)
	return out
}

// Filter keeps the rows where mask is true.
func (df *DataFrame) Filter(mask *Series) (*DataFrame, error) {
	rows, err := maskRows(mask, df.nrows)
	if err != nil {
		return nil, err
	}
	return df.take(rows), nil
}

// Head returns the first n rows.
func (df *DataFrame) Head(n int) *DataFrame {
	if n < 0 {
		n = max(df.nrows+n, 0)
	}
	return df.take(rangeInts(min(n, df.nrows)))
}

// Tail returns the last n rows.
func (df *DataFrame) Tail(n int) *DataFrame {
	n = min(max(n, 0), df.nrows)
	rows := make([]int, n)
	for i := range rows {
		rows[i] = df.nrows - n + i
	}
	return df.take(rows)
}

// Row returns the values of row i keyed by column.
func (df *DataFrame) Row(i int) map[string]any {
	row := make(map[string]any, len(df.columns))
	for _, c := range df.columns {
		row[c] = df.data[c][i]
	}
	return row
}

// RowValues returns the values of row i in column order.
func (df *DataFrame) RowValues(i int) []any {
	vals := make([]any, len(df.columns))
	for c, name := range df.columns {
		vals[c] = df.data[name][i]
	}
	return vals
}

// ILoc returns row i as a Series indexed by column name.
func (df *DataFrame) ILoc(i int) (*Series, error) {
	if i < 0 {
		i += df.nrows
	}
	if i < 0 || i >= df.nrows {
		return nil, fmt.Errorf("row position %d out of bounds for %d rows", i, df.nrows)
	}
	idx := make([]any, len(df.columns))
	for c, name := range df.columns {
		idx[c] = name
	}
	return NewSeries(FormatValue(df.index[i]), df.RowValues(i), idx), nil
}

// Records returns every row keyed by column.
func (df *DataFrame) Records() []map[string]any {
	out := make([]map[string]any, df.nrows)
	for i := range out {
		out[i] = df.Row(i)
	}
	return out
}

// SortValues orders rows by the given columns. ascending may hold one flag
// per column or a single flag for all.
func (df *DataFrame) SortValues(by []string, ascending []bool) (*DataFrame, error) {
	cols := make([][]any, len(by))
	for i, name := range by {
		vals, ok := df.data[name]
		if !ok {
			return nil, &ColumnError{Name: name}
		}
		cols[i] = vals
	}
	asc := func(i int) bool {
		switch {
		case len(ascending) == 0:
			return true
		case i < len(ascending):
			return ascending[i]
		}
		return ascending[0]
	}
	rows := rangeInts(df.nrows)
	sort.SliceStable(rows, func(a, b int) bool {
		for i, col := range cols {
			va, vb := col[rows[a]], col[rows[b]]
			if IsNull(va) != IsNull(vb) {
				return IsNull(vb)
			}
			c := compareLabels(va, vb)
			if c == 0 {
				continue
			}
			if asc(i) {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return df.take(rows), nil
}

// NLargest returns the n rows with the largest values in column.
func (df *DataFrame) NLargest(n int, column string) (*DataFrame, error) {
	sorted, err := df.SortValues([]string{column}, []bool{false})
	if err != nil {
		return nil, err
	}
	return sorted.Head(n), nil
}

// NSmallest returns the n rows with the smallest values in column.
func (df *DataFrame) NSmallest(n int, column string) (*DataFrame, error) {
	sorted, err := df.SortValues([]string{column}, []bool{true})
	if err != nil {
		return nil, err
	}
	return sorted.Head(n), nil
}

// DropDuplicates removes repeated rows, considering subset columns (all
// columns when subset is empty).
func (df *DataFrame) DropDuplicates(subset ...string) (*DataFrame, error) {
	if len(subset) == 0 {
		subset = df.columns
	}
	for _, c := range subset {
		if !df.HasColumn(c) {
			return nil, &ColumnError{Name: c}
		}
	}
	seen := make(map[string]bool)
	var rows []int
	for i := 0; i < df.nrows; i++ {
		key := make([]any, len(subset))
		for j, c := range subset {
			key[j] = df.data[c][i]
		}
		k := labelKey(key)
		if !seen[k] {
			seen[k] = true
			rows = append(rows, i)
		}
	}
	return df.take(rows), nil
}

// DropNA removes rows with a missing value in any of subset (all columns
// when subset is empty).
func (df *DataFrame) DropNA(subset ...string) (*DataFrame, error) {
	if len(subset) == 0 {
		subset = df.columns
	}
	var rows []int
	for i := 0; i < df.nrows; i++ {
		keep := true
		for _, c := range subset {
			vals, ok := df.data[c]
			if !ok {
				return nil, &ColumnError{Name: c}
			}
			if IsNull(vals[i]) {
				keep = false
				break
			}
		}
		if keep {
			rows = append(rows, i)
		}
	}
	return df.take(rows), nil
}

// FillNA replaces missing values in every column.
func (df *DataFrame) FillNA(v any) *DataFrame {
	data := make([][]any, len(df.columns))
	for c, name := range df.columns {
		s := &Series{values: df.data[name], index: df.index}
		data[c] = s.FillNA(v).values
	}
	out, _ := New(df.columns, data, df.index)
	return out
}

// ResetIndex replaces the index with positions. When keep is true the old
// labels become an "index" column.
func (df *DataFrame) ResetIndex(keep bool) *DataFrame {
	if !keep {
		out, _ := New(df.columns, df.columnData(), nil)
		return out
	}
	names := append([]string{"index"}, df.columns...)
	data := append([][]any{df.Index()}, df.columnData()...)
	out, err := New(names, data, nil)
	if err != nil {
		out, _ = New(df.columns, df.columnData(), nil)
	}
	return out
}

// SetIndex uses a column as the index.
func (df *DataFrame) SetIndex(column string) (*DataFrame, error) {
	vals, ok := df.data[column]
	if !ok {
		return nil, &ColumnError{Name: column}
	}
	rest, err := df.Drop(column)
	if err != nil {
		return nil, err
	}
	return New(rest.columns, rest.columnData(), vals)
}

func (df *DataFrame) columnData() [][]any {
	data := make([][]any, len(df.columns))
	for c, name := range df.columns {
		data[c] = df.data[name]
	}
	return data
}

// Aggregate reduces every numeric column with fn ("sum", "mean", "median",
// "min", "max", "std", "count", "nunique") and returns a Series indexed by
// column name.
func (df *DataFrame) Aggregate(fn string) (*Series, error) {
	var idx, vals []any
	for _, c := range df.columns {
		s := &Series{name: c, index: df.index, values: df.data[c]}
		if fn != "count" && fn != "nunique" && fn != "min" && fn != "max" && !s.isNumeric() {
			continue
		}
		v, err := s.Reduce(fn)
		if err != nil {
			return nil, err
		}
		idx = append(idx, c)
		vals = append(vals, v)
	}
	return NewSeries("", vals, idx), nil
}

// Reduce applies a named aggregation to the series.
func (s *Series) Reduce(fn string) (any, error) {
	switch fn {
	case "sum":
		return s.Sum(), nil
	case "mean", "average":
		return s.Mean(), nil
	case "median":
		return s.Median(), nil
	case "min":
		return s.Min(), nil
	case "max":
		return s.Max(), nil
	case "std":
		return s.Std(), nil
	case "var":
		return s.Var(), nil
	case "count":
		return int64(s.Count()), nil
	case "nunique":
		return int64(s.NUnique()), nil
	case "size":
		return int64(s.Len()), nil
	case "first":
		if s.Len() == 0 {
			return nil, nil
		}
		return s.values[0], nil
	case "last":
		if s.Len() == 0 {
			return nil, nil
		}
		return s.values[s.Len()-1], nil
	}
	return nil, fmt.Errorf("%w: aggregation %q", ErrUnsupported, fn)
}

func (s *Series) isNumeric() bool {
	seen := false
	for _, v := range s.values {
		if IsNull(v) {
			continue
		}
		if _, ok := numeric(v); !ok {
			return false
		}
		if _, isBool := v.(bool); isBool {
			return false
		}
		seen = true
	}
	return seen
}

// Describe summarizes numeric columns (count, mean, std, min, 50%, max).
func (df *DataFrame) Describe() (*DataFrame, error) {
	stats := []string{"count", "mean", "std", "min", "50%", "max"}
	var names []string
	var data [][]any
	for _, c := range df.columns {
		s := &Series{name: c, index: df.index, values: df.data[c]}
		if !s.isNumeric() {
			continue
		}
		mn, _ := ToFloat(s.Min())
		mx, _ := ToFloat(s.Max())
		names = append(names, c)
		data = append(data, []any{float64(s.Count()), s.Mean(), s.Std(), mn, s.Median(), mx})
	}
	idx := make([]any, len(stats))
	for i, st := range stats {
		idx[i] = st
	}
	if len(names) == 0 {
		return New(nil, nil, idx)
	}
	return New(names, data, idx)
}

// Concat stacks frames vertically. Columns missing from a frame are filled
// with missing values.
func Concat(frames ...*DataFrame) (*DataFrame, error) {
	var names []string
	seen := make(map[string]bool)
	total := 0
	for _, f := range frames {
		for _, c := range f.columns {
			if !seen[c] {
				seen[c] = true
				names = append(names, c)
			}
		}
		total += f.nrows
	}
	data := make([][]any, len(names))
	for i, c := range names {
		col := make([]any, 0, total)
		for _, f := range frames {
			if vals, ok := f.data[c]; ok {
				col = append(col, vals...)
			} else {
				col = append(col, make([]any, f.nrows)...)
			}
		}
		data[i] = col
	}
	var idx []any
	for _, f := range frames {
		idx = append(idx, f.index...)
	}
	if len(names) == 0 {
		return New(nil, nil, idx)
	}
	return New(names, data, idx)
}
