package starlark

import (
	"fmt"
	"math"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// Series wraps a frame.Series. keys names the index levels when the series
// came out of a group-by or value_counts, so reset_index can restore them as
// columns.
type Series struct {
	rt   *Runtime
	s    *frame.Series
	keys []string
}

var (
	_ starlark.HasAttrs  = (*Series)(nil)
	_ starlark.HasBinary = (*Series)(nil)
	_ starlark.HasUnary  = (*Series)(nil)
	_ starlark.Mapping   = (*Series)(nil)
	_ starlark.Sequence  = (*Series)(nil)
)

// Unwrap returns the underlying series.
func (s *Series) Unwrap() *frame.Series { return s.s }

func (s *Series) String() string        { return RenderSeries(s.s, s.rt.previewRows) }
func (s *Series) Type() string          { return "Series" }
func (s *Series) Freeze()               {}
func (s *Series) Truth() starlark.Bool  { return s.s.Len() > 0 }
func (s *Series) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Series") }
func (s *Series) Len() int              { return s.s.Len() }

func (s *Series) Iterate() starlark.Iterator {
	return &cellIterator{cells: s.s.Values()}
}

func (s *Series) derive(out *frame.Series) *Series {
	return &Series{rt: s.rt, s: out, keys: s.keys}
}

// Get implements s[label] and s[mask].
func (s *Series) Get(k starlark.Value) (starlark.Value, bool, error) {
	switch key := k.(type) {
	case *Series:
		out, err := s.s.Filter(key.s)
		if err != nil {
			return nil, false, err
		}
		return s.derive(out), true, nil
	case *starlark.List:
		labels, err := cellsOf(key)
		if err != nil {
			return nil, false, err
		}
		vals := make([]any, 0, len(labels))
		for _, l := range labels {
			v, ok := s.s.Get(l)
			if !ok {
				return nil, false, fmt.Errorf("key %s not in Series", frame.FormatValue(l))
			}
			vals = append(vals, v)
		}
		return s.derive(frame.NewSeries(s.s.Name(), vals, labels)), true, nil
	}
	cell, err := ValueToCell(k)
	if err != nil {
		return nil, false, err
	}
	if v, ok := s.s.Get(cell); ok {
		return CellToValue(v), true, nil
	}
	if i, ok := cell.(int64); ok && !s.hasIntIndex() {
		if v, ok := s.position(int(i)); ok {
			return v, true, nil
		}
	}
	return nil, false, nil
}

func (s *Series) hasIntIndex() bool {
	for _, l := range s.s.Index() {
		if _, ok := l.(int64); ok {
			return true
		}
	}
	return false
}

func (s *Series) position(i int) (starlark.Value, bool) {
	if i < 0 {
		i += s.s.Len()
	}
	if i < 0 || i >= s.s.Len() {
		return nil, false
	}
	return CellToValue(s.s.At(i)), true
}

// operandOf unwraps the right-hand side of an element-wise operation.
func operandOf(y starlark.Value) (any, bool) {
	if ys, ok := y.(*Series); ok {
		return ys.s, true
	}
	c, err := ValueToCell(y)
	if err != nil {
		return nil, false
	}
	return c, true
}

var logicalOps = map[syntax.Token]string{
	syntax.AMP:        "&",
	syntax.PIPE:       "|",
	syntax.CIRCUMFLEX: "^",
}

func (s *Series) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	other, ok := operandOf(y)
	if !ok {
		return nil, nil
	}
	if name, ok := logicalOps[op]; ok {
		out, err := s.s.Logical(name, other)
		if err != nil {
			return nil, err
		}
		return s.derive(out), nil
	}
	name, ok := arithOps[op]
	if !ok {
		return nil, nil
	}
	out, err := s.s.Arith(name, other, side == starlark.Right)
	if err != nil {
		return nil, err
	}
	return s.derive(out), nil
}

func (s *Series) Unary(op syntax.Token) (starlark.Value, error) {
	switch op {
	case syntax.MINUS:
		out, err := s.s.Neg()
		if err != nil {
			return nil, err
		}
		return s.derive(out), nil
	case syntax.TILDE:
		out, err := s.s.Not()
		if err != nil {
			return nil, err
		}
		return s.derive(out), nil
	case syntax.PLUS:
		return s, nil
	}
	return nil, nil
}

// compare applies an element-wise comparison; reflected means the series was
// the right operand.
func (s *Series) compare(op string, y starlark.Value, reflected bool) (starlark.Value, error) {
	other, ok := operandOf(y)
	if !ok {
		return nil, fmt.Errorf("cannot compare Series with %s", y.Type())
	}
	out, err := s.s.CompareWith(op, other, reflected)
	if err != nil {
		return nil, err
	}
	return s.derive(out), nil
}

var seriesAttrs = []string{
	"name", "values", "index", "size", "shape", "empty", "dtype", "str", "dt", "iloc", "loc",
}

var seriesMethods map[string]*starlark.Builtin

func (s *Series) AttrNames() []string { return attrNames(seriesAttrs, seriesMethods) }

func (s *Series) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		if s.s.Name() == "" {
			return starlark.None, nil
		}
		return starlark.String(s.s.Name()), nil
	case "values":
		return listOf(s.s.Values()), nil
	case "index":
		return listOf(s.s.Index()), nil
	case "size":
		return starlark.MakeInt(s.s.Len()), nil
	case "shape":
		return starlark.Tuple{starlark.MakeInt(s.s.Len())}, nil
	case "empty":
		return starlark.Bool(s.s.Len() == 0), nil
	case "dtype":
		return starlark.String(dtypeOf(s.s.Values())), nil
	case "str":
		return &strAccessor{s: s}, nil
	case "dt":
		return &dtAccessor{s: s}, nil
	case "iloc":
		return &seriesILoc{s: s}, nil
	case "loc":
		return &seriesLoc{s: s}, nil
	}
	if m, ok := seriesMethods[name]; ok {
		return m.BindReceiver(s), nil
	}
	return nil, nil
}

// reduction builds a method returning a scalar aggregate.
func reduction(name string, fn func(s *frame.Series) any) *starlark.Builtin {
	return method(name, func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := unpack(name, args, kwargs); err != nil {
			return nil, err
		}
		return CellToValue(fn(s.s)), nil
	})
}

// transform builds a method returning a derived series.
func transform(name string, fn func(s *frame.Series) (*frame.Series, error)) *starlark.Builtin {
	return method(name, func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := unpack(name, args, kwargs); err != nil {
			return nil, err
		}
		out, err := fn(s.s)
		if err != nil {
			return nil, err
		}
		return s.derive(out), nil
	})
}

// spread applies a variance-style statistic honouring ddof.
func spread(name string, fn func(s *frame.Series) float64, sqrt bool) *starlark.Builtin {
	return method(name, func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		ddof := 1
		if err := unpack(name, args, kwargs, "ddof?", &ddof); err != nil {
			return nil, err
		}
		v := fn(s.s)
		if ddof != 1 {
			n := float64(s.s.Count())
			variance := s.s.Var()
			if n-float64(ddof) <= 0 {
				return starlark.Float(math.NaN()), nil
			}
			variance = variance * (n - 1) / (n - float64(ddof))
			v = variance
			if sqrt {
				v = math.Sqrt(variance)
			}
		}
		return starlark.Float(v), nil
	})
}

func init() {
	seriesMethods = map[string]*starlark.Builtin{
		"sum":     reduction("sum", func(s *frame.Series) any { return s.Sum() }),
		"mean":    reduction("mean", func(s *frame.Series) any { return s.Mean() }),
		"median":  reduction("median", func(s *frame.Series) any { return s.Median() }),
		"min":     reduction("min", func(s *frame.Series) any { return s.Min() }),
		"max":     reduction("max", func(s *frame.Series) any { return s.Max() }),
		"count":   reduction("count", func(s *frame.Series) any { return int64(s.Count()) }),
		"nunique": reduction("nunique", func(s *frame.Series) any { return int64(s.NUnique()) }),
		"idxmax":  reduction("idxmax", func(s *frame.Series) any { return s.IdxMax() }),
		"idxmin":  reduction("idxmin", func(s *frame.Series) any { return s.IdxMin() }),
		"any":     reduction("any", func(s *frame.Series) any { return s.Any() }),
		"all":     reduction("all", func(s *frame.Series) any { return s.All() }),
		"std":     spread("std", (*frame.Series).Std, true),
		"var":     spread("var", (*frame.Series).Var, false),

		"unique": method("unique", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack("unique", args, kwargs); err != nil {
				return nil, err
			}
			return listOf(s.s.Unique()), nil
		}),
		"tolist":  method("tolist", seriesToList),
		"to_list": method("to_list", seriesToList),
		"value_counts": method("value_counts", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var normalize, ascending bool
			if err := unpack("value_counts", args, kwargs, "normalize?", &normalize, "ascending?", &ascending); err != nil {
				return nil, err
			}
			out := s.s.ValueCounts()
			if ascending {
				out = out.SortValues(true)
			}
			if normalize {
				total := float64(s.s.Count())
				var err error
				out, err = out.Arith(frame.OpDiv, total, false)
				if err != nil {
					return nil, err
				}
				out = out.Rename("proportion")
			}
			return &Series{rt: s.rt, s: out, keys: []string{s.s.Name()}}, nil
		}),
		"mode": transform("mode", func(s *frame.Series) (*frame.Series, error) { return s.Mode(), nil }),
		"abs":  transform("abs", (*frame.Series).Abs),
		"round": method("round", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			decimals := 0
			if err := unpack("round", args, kwargs, "decimals?", &decimals); err != nil {
				return nil, err
			}
			return s.derive(s.s.Round(decimals)), nil
		}),
		"astype": method("astype", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var kind starlark.Value
			if err := unpack("astype", args, kwargs, "dtype", &kind); err != nil {
				return nil, err
			}
			name, err := dtypeName(kind)
			if err != nil {
				return nil, err
			}
			if strings.HasPrefix(name, "datetime") {
				return s.derive(s.s.ToDatetime()), nil
			}
			out, err := s.s.AsType(name)
			if err != nil {
				return nil, err
			}
			return s.derive(out), nil
		}),
		"head": method("head", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			n := 5
			if err := unpack("head", args, kwargs, "n?", &n); err != nil {
				return nil, err
			}
			return s.derive(s.s.Head(n)), nil
		}),
		"tail": method("tail", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			n := 5
			if err := unpack("tail", args, kwargs, "n?", &n); err != nil {
				return nil, err
			}
			return s.derive(s.s.Tail(n)), nil
		}),
		"sort_values": method("sort_values", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			ascending := true
			if err := unpack("sort_values", args, kwargs, "ascending?", &ascending); err != nil {
				return nil, err
			}
			return s.derive(s.s.SortValues(ascending)), nil
		}),
		"sort_index": method("sort_index", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			ascending := true
			if err := unpack("sort_index", args, kwargs, "ascending?", &ascending); err != nil {
				return nil, err
			}
			return s.derive(s.s.SortIndex(ascending)), nil
		}),
		"nlargest": method("nlargest", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			n := 5
			if err := unpack("nlargest", args, kwargs, "n?", &n); err != nil {
				return nil, err
			}
			return s.derive(s.s.NLargest(n)), nil
		}),
		"nsmallest": method("nsmallest", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			n := 5
			if err := unpack("nsmallest", args, kwargs, "n?", &n); err != nil {
				return nil, err
			}
			return s.derive(s.s.NSmallest(n)), nil
		}),
		"isin": method("isin", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var values starlark.Value
			if err := unpack("isin", args, kwargs, "values", &values); err != nil {
				return nil, err
			}
			set, err := cellsOf(values)
			if err != nil {
				return nil, err
			}
			return s.derive(s.s.IsIn(set)), nil
		}),
		"between": method("between", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var lo, hi starlark.Value
			var inclusive starlark.Value
			if err := unpack("between", args, kwargs, "left", &lo, "right", &hi, "inclusive?", &inclusive); err != nil {
				return nil, err
			}
			l, err := ValueToCell(lo)
			if err != nil {
				return nil, err
			}
			h, err := ValueToCell(hi)
			if err != nil {
				return nil, err
			}
			return s.derive(s.s.Between(l, h)), nil
		}),
		"isna":    transform("isna", func(s *frame.Series) (*frame.Series, error) { return s.IsNA(), nil }),
		"isnull":  transform("isnull", func(s *frame.Series) (*frame.Series, error) { return s.IsNA(), nil }),
		"notna":   transform("notna", func(s *frame.Series) (*frame.Series, error) { return s.NotNA(), nil }),
		"notnull": transform("notnull", func(s *frame.Series) (*frame.Series, error) { return s.NotNA(), nil }),
		"dropna":  transform("dropna", func(s *frame.Series) (*frame.Series, error) { return s.DropNA(), nil }),
		"cumsum":  transform("cumsum", func(s *frame.Series) (*frame.Series, error) { return s.CumSum(), nil }),
		"copy":    transform("copy", func(s *frame.Series) (*frame.Series, error) { return s, nil }),
		"fillna": method("fillna", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var fill starlark.Value
			if err := unpack("fillna", args, kwargs, "value", &fill); err != nil {
				return nil, err
			}
			c, err := ValueToCell(fill)
			if err != nil {
				return nil, err
			}
			return s.derive(s.s.FillNA(c)), nil
		}),
		"quantile": method("quantile", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			q := starlark.Value(starlark.Float(0.5))
			if err := unpack("quantile", args, kwargs, "q?", &q); err != nil {
				return nil, err
			}
			f, ok := starlark.AsFloat(q)
			if !ok || f < 0 || f > 1 {
				return nil, fmt.Errorf("quantile: q must be between 0 and 1")
			}
			return starlark.Float(s.s.Quantile(f)), nil
		}),
		"clip": method("clip", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var lower, upper starlark.Value = starlark.None, starlark.None
			if err := unpack("clip", args, kwargs, "lower?", &lower, "upper?", &upper); err != nil {
				return nil, err
			}
			lo, _ := ValueToCell(lower)
			hi, _ := ValueToCell(upper)
			out, err := s.s.Map(func(v any) (any, error) {
				if frame.IsNull(v) {
					return v, nil
				}
				if c, ok := frame.Compare(v, lo); lo != nil && ok && c < 0 {
					return lo, nil
				}
				if c, ok := frame.Compare(v, hi); hi != nil && ok && c > 0 {
					return hi, nil
				}
				return v, nil
			})
			if err != nil {
				return nil, err
			}
			return s.derive(out), nil
		}),
		"apply": method("apply", seriesApply),
		"map":   method("map", seriesApply),
		"replace": method("replace", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var from, to starlark.Value = nil, starlark.None
			if err := unpack("replace", args, kwargs, "to_replace", &from, "value?", &to); err != nil {
				return nil, err
			}
			mapping, err := replacementMap(from, to)
			if err != nil {
				return nil, err
			}
			out, err := s.s.Map(func(v any) (any, error) {
				for _, m := range mapping {
					if frame.Equal(v, m[0]) {
						return m[1], nil
					}
				}
				return v, nil
			})
			if err != nil {
				return nil, err
			}
			return s.derive(out), nil
		}),
		"to_dict": method("to_dict", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack("to_dict", args, kwargs); err != nil {
				return nil, err
			}
			d := starlark.NewDict(s.s.Len())
			for _, p := range s.s.Pairs() {
				if err := d.SetKey(CellToValue(p[0]), CellToValue(p[1])); err != nil {
					return nil, err
				}
			}
			return d, nil
		}),
		"items": method("items", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack("items", args, kwargs); err != nil {
				return nil, err
			}
			pairs := s.s.Pairs()
			out := make([]starlark.Value, len(pairs))
			for i, p := range pairs {
				out[i] = starlark.Tuple{CellToValue(p[0]), CellToValue(p[1])}
			}
			return starlark.NewList(out), nil
		}),
		"keys": method("keys", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack("keys", args, kwargs); err != nil {
				return nil, err
			}
			return listOf(s.s.Index()), nil
		}),
		"get": method("get", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var key starlark.Value
			def := starlark.Value(starlark.None)
			if err := unpack("get", args, kwargs, "key", &key, "default?", &def); err != nil {
				return nil, err
			}
			c, err := ValueToCell(key)
			if err != nil {
				return nil, err
			}
			if v, ok := s.s.Get(c); ok {
				return CellToValue(v), nil
			}
			return def, nil
		}),
		"rename": method("rename", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			if err := unpack("rename", args, kwargs, "index", &name); err != nil {
				return nil, err
			}
			return s.derive(s.s.Rename(name)), nil
		}),
		"reset_index": method("reset_index", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var drop bool
			var name starlark.Value = starlark.None
			if err := unpack("reset_index", args, kwargs, "drop?", &drop, "name?", &name); err != nil {
				return nil, err
			}
			src := s.s
			if n, ok := starlark.AsString(name); ok {
				src = src.Rename(n)
			}
			if drop {
				return s.rt.series(frame.NewSeries(src.Name(), src.Values(), nil)), nil
			}
			if len(s.keys) > 0 {
				df, err := frame.ResetGroupIndex(s.keys, src)
				if err != nil {
					return nil, err
				}
				return s.rt.frame(df), nil
			}
			return s.rt.frame(src.ResetIndex("")), nil
		}),
		"to_frame": method("to_frame", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name starlark.Value = starlark.None
			if err := unpack("to_frame", args, kwargs, "name?", &name); err != nil {
				return nil, err
			}
			src := s.s
			if n, ok := starlark.AsString(name); ok {
				src = src.Rename(n)
			}
			return s.rt.frame(src.ToFrame()), nil
		}),
		"describe": method("describe", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack("describe", args, kwargs); err != nil {
				return nil, err
			}
			df, err := s.s.ToFrame().Describe()
			if err != nil {
				return nil, err
			}
			col, err := df.Column(s.columnName())
			if err != nil {
				return nil, fmt.Errorf("describe: %s is not numeric", s.columnName())
			}
			return s.rt.series(col), nil
		}),
		"agg":       method("agg", seriesAgg),
		"aggregate": method("aggregate", seriesAgg),
		"to_string": method("to_string", func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack("to_string", args, kwargs); err != nil {
				return nil, err
			}
			return starlark.String(RenderSeries(s.s, s.s.Len())), nil
		}),
		"add": arithMethod("add", frame.OpAdd),
		"sub": arithMethod("sub", frame.OpSub),
		"mul": arithMethod("mul", frame.OpMul),
		"div": arithMethod("div", frame.OpDiv),
	}
}

func (s *Series) columnName() string {
	if s.s.Name() == "" {
		return "0"
	}
	return s.s.Name()
}

func seriesToList(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack("tolist", args, kwargs); err != nil {
		return nil, err
	}
	return listOf(s.s.Values()), nil
}

// seriesApply maps each value through a callable, or through a dict for map.
func seriesApply(thread *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Value
	if err := unpack("apply", args, kwargs, "func", &fn); err != nil {
		return nil, err
	}
	if d, ok := fn.(*starlark.Dict); ok {
		out, err := s.s.Map(func(v any) (any, error) {
			got, found, err := d.Get(CellToValue(v))
			if err != nil || !found {
				return nil, err
			}
			return ValueToCell(got)
		})
		if err != nil {
			return nil, err
		}
		return s.derive(out), nil
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("apply: %s is not callable", fn.Type())
	}
	out, err := s.s.Map(func(v any) (any, error) {
		r, err := starlark.Call(thread, callable, starlark.Tuple{CellToValue(v)}, nil)
		if err != nil {
			return nil, err
		}
		return ValueToCell(r)
	})
	if err != nil {
		return nil, err
	}
	return s.derive(out), nil
}

// seriesAgg reduces by a function name or a list of names.
func seriesAgg(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var spec starlark.Value
	if err := unpack("agg", args, kwargs, "func", &spec); err != nil {
		return nil, err
	}
	if name, ok := aggName(spec); ok {
		v, err := s.s.Reduce(name)
		if err != nil {
			return nil, err
		}
		return CellToValue(v), nil
	}
	names, err := aggNames(spec)
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(names))
	idx := make([]any, len(names))
	for i, n := range names {
		v, err := s.s.Reduce(n)
		if err != nil {
			return nil, err
		}
		vals[i], idx[i] = v, n
	}
	return s.rt.series(frame.NewSeries(s.s.Name(), vals, idx)), nil
}

func arithMethod(name, op string) *starlark.Builtin {
	return method(name, func(_ *starlark.Thread, s *Series, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var other starlark.Value
		if err := unpack(name, args, kwargs, "other", &other); err != nil {
			return nil, err
		}
		o, ok := operandOf(other)
		if !ok {
			return nil, fmt.Errorf("%s: unsupported operand %s", name, other.Type())
		}
		out, err := s.s.Arith(op, o, false)
		if err != nil {
			return nil, err
		}
		return s.derive(out), nil
	})
}

// dtypeName resolves an astype argument: a type name, a builtin such as
// float or str, or a numpy dtype string.
func dtypeName(v starlark.Value) (string, error) {
	switch t := v.(type) {
	case starlark.String:
		return string(t), nil
	case *starlark.Builtin:
		return t.Name(), nil
	}
	return "", fmt.Errorf("astype: unsupported dtype %s", v.String())
}

// aggName accepts "sum" or the builtin sum/max/min/len.
func aggName(v starlark.Value) (string, bool) {
	switch t := v.(type) {
	case starlark.String:
		return normalizeAgg(string(t)), true
	case *starlark.Builtin:
		if t.Name() == "len" {
			return "size", true
		}
		return normalizeAgg(t.Name()), true
	}
	return "", false
}

func normalizeAgg(name string) string {
	switch name {
	case "average", "avg":
		return "mean"
	case "len":
		return "size"
	}
	return name
}

func aggNames(v starlark.Value) ([]string, error) {
	iter, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("agg: expected a function name or list of names, got %s", v.Type())
	}
	var out []string
	it := iter.Iterate()
	defer it.Done()
	var x starlark.Value
	for it.Next(&x) {
		n, ok := aggName(x)
		if !ok {
			return nil, fmt.Errorf("agg: unsupported aggregation %s", x.String())
		}
		out = append(out, n)
	}
	return out, nil
}

// replacementMap normalizes replace(to_replace, value) into pairs.
func replacementMap(from, to starlark.Value) ([][2]any, error) {
	if d, ok := from.(*starlark.Dict); ok {
		var out [][2]any
		for _, item := range d.Items() {
			k, err := ValueToCell(item[0])
			if err != nil {
				return nil, err
			}
			v, err := ValueToCell(item[1])
			if err != nil {
				return nil, err
			}
			out = append(out, [2]any{k, v})
		}
		return out, nil
	}
	target, err := ValueToCell(to)
	if err != nil {
		return nil, err
	}
	if _, isStr := from.(starlark.String); !isStr {
		if iter, ok := from.(starlark.Iterable); ok {
			cells, err := cellsOf(iter)
			if err != nil {
				return nil, err
			}
			out := make([][2]any, len(cells))
			for i, c := range cells {
				out[i] = [2]any{c, target}
			}
			return out, nil
		}
	}
	src, err := ValueToCell(from)
	if err != nil {
		return nil, err
	}
	return [][2]any{{src, target}}, nil
}
