package starlark

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// ErrImportNotAllowed is wrapped by every import outside the capability table.
var ErrImportNotAllowed = errors.New("import not allowed")

// ImportError names the module a snippet tried to import.
type ImportError struct {
	Module string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("no module named %q", e.Module)
}

func (e *ImportError) Unwrap() error { return ErrImportNotAllowed }

// Helper names inserted by the source translation and the AST rewrite.
const (
	HelperImport  = "_import"
	HelperCompare = "_cmp"
	HelperFormat  = "_fmt"
	HelperPow     = "_pow"
)

// Predeclared builds a fresh global environment for one execution: the
// helper functions plus the builtins Starlark lacks.
func (rt *Runtime) Predeclared() starlark.StringDict {
	modules := rt.modules()
	return starlark.StringDict{
		HelperImport: starlark.NewBuiltin(HelperImport, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var module, member string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "module", &module, "member?", &member); err != nil {
				return nil, err
			}
			m, ok := modules[module]
			if !ok {
				return nil, &ImportError{Module: module}
			}
			if member == "" {
				return m, nil
			}
			v, err := m.(starlark.HasAttrs).Attr(member)
			if err != nil || v == nil {
				return nil, &ImportError{Module: module + "." + member}
			}
			return v, nil
		}),
		HelperCompare: starlark.NewBuiltin(HelperCompare, compareBuiltin),
		HelperFormat:  starlark.NewBuiltin(HelperFormat, formatBuiltin),
		HelperPow:     starlark.NewBuiltin(HelperPow, powBuiltin),
		"round":       starlark.NewBuiltin("round", roundBuiltin),
		"sum":         starlark.NewBuiltin("sum", sumBuiltin),
		"abs":         starlark.NewBuiltin("abs", absBuiltin),
		"map":         starlark.NewBuiltin("map", mapBuiltin),
		"filter":      starlark.NewBuiltin("filter", filterBuiltin),
		"isinstance":  starlark.NewBuiltin("isinstance", isinstanceBuiltin),
		"divmod":      starlark.NewBuiltin("divmod", divmodBuiltin),
	}
}

// compareBuiltin implements _cmp(x, op, y). Series operands compare
// element-wise.
func compareBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, y starlark.Value
	var op string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &x, &op, &y); err != nil {
		return nil, err
	}
	if s, ok := x.(*Series); ok {
		return s.compare(op, y, false)
	}
	if s, ok := y.(*Series); ok {
		return s.compare(op, x, true)
	}
	tok, ok := compareOps[op]
	if !ok {
		return nil, fmt.Errorf("unknown comparison %q", op)
	}
	r, err := starlark.Compare(tok, x, y)
	if err == nil {
		return starlark.Bool(r), nil
	}
	// Timestamps order against date strings the way pandas does.
	_, xt := x.(Timestamp)
	_, yt := y.(Timestamp)
	if xt || yt {
		a, errA := ValueToCell(x)
		c, errC := ValueToCell(y)
		if errA == nil && errC == nil {
			if r, err := frame.CompareValue(op, a, c); err == nil {
				return starlark.Bool(r), nil
			}
		}
	}
	return nil, err
}

func formatBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	var spec string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &v, &spec); err != nil {
		return nil, err
	}
	s, err := FormatSpec(v, spec)
	if err != nil {
		return nil, err
	}
	return starlark.String(s), nil
}

func powBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, y starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &y); err != nil {
		return nil, err
	}
	if s, ok := x.(*Series); ok {
		other, ok := operandOf(y)
		if !ok {
			return nil, fmt.Errorf("unsupported operand type for **: Series and %s", y.Type())
		}
		out, err := s.s.Arith(frame.OpPow, other, false)
		if err != nil {
			return nil, err
		}
		return s.derive(out), nil
	}
	if s, ok := y.(*Series); ok {
		other, ok := operandOf(x)
		if !ok {
			return nil, fmt.Errorf("unsupported operand type for **: %s and Series", x.Type())
		}
		out, err := s.s.Arith(frame.OpPow, other, true)
		if err != nil {
			return nil, err
		}
		return s.derive(out), nil
	}
	if bi, ok := x.(starlark.Int); ok {
		if ei, ok := y.(starlark.Int); ok {
			if e, ok := ei.Int64(); ok && e >= 0 && e <= 1024 {
				result := starlark.MakeInt(1)
				for range e {
					result = result.Mul(bi)
				}
				return result, nil
			}
		}
	}
	a, okA := starlark.AsFloat(x)
	c, okC := starlark.AsFloat(y)
	if !okA || !okC {
		return nil, fmt.Errorf("unsupported operand type(s) for **: %s and %s", x.Type(), y.Type())
	}
	return starlark.Float(math.Pow(a, c)), nil
}

// roundBuiltin rounds half to even. Without ndigits the result is an int.
func roundBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var ndigits starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "number", &x, "ndigits?", &ndigits); err != nil {
		return nil, err
	}
	if s, ok := x.(*Series); ok {
		n, err := optInt(ndigits, 0)
		if err != nil {
			return nil, err
		}
		return s.derive(s.s.Round(n)), nil
	}
	if i, ok := x.(starlark.Int); ok && ndigits == starlark.None {
		return i, nil
	}
	f, ok := floatOf(x)
	if !ok {
		return nil, fmt.Errorf("type %s doesn't define __round__ method", x.Type())
	}
	if ndigits == starlark.None {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("cannot convert float %s to integer", starlark.Float(f).String())
		}
		return starlark.NumberToInt(starlark.Float(math.RoundToEven(f)))
	}
	n, err := starlark.AsInt32(ndigits)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return starlark.Float(f), nil
	}
	if n < 0 {
		p := math.Pow(10, float64(-n))
		return starlark.Float(math.RoundToEven(f/p) * p), nil
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', n, 64), 64)
	if err != nil {
		return nil, err
	}
	if _, isInt := x.(starlark.Int); isInt {
		return starlark.MakeInt64(int64(r)), nil
	}
	return starlark.Float(r), nil
}

func sumBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Value
	var start starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &start); err != nil {
		return nil, err
	}
	if s, ok := iterable.(*Series); ok {
		total := CellToValue(s.s.Sum())
		return starlark.Binary(syntax.PLUS, start, total)
	}
	it, ok := iterable.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("sum: %s object is not iterable", iterable.Type())
	}
	iter := it.Iterate()
	defer iter.Done()
	acc := start
	var x starlark.Value
	for iter.Next(&x) {
		r, err := starlark.Binary(syntax.PLUS, acc, x)
		if err != nil {
			return nil, fmt.Errorf("sum: %w", err)
		}
		acc = r
	}
	return acc, nil
}

func absBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case *Series:
		out, err := v.s.Abs()
		if err != nil {
			return nil, err
		}
		return v.derive(out), nil
	case starlark.Int:
		if v.Sign() < 0 {
			return starlark.MakeInt(0).Sub(v), nil
		}
		return v, nil
	case starlark.Float:
		return starlark.Float(math.Abs(float64(v))), nil
	case Timedelta:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	}
	return nil, fmt.Errorf("bad operand type for abs(): %s", x.Type())
}

func mapBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Callable
	var iterable starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &fn, &iterable); err != nil {
		return nil, err
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var out []starlark.Value
	var x starlark.Value
	for iter.Next(&x) {
		r, err := starlark.Call(thread, fn, starlark.Tuple{x}, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return starlark.NewList(out), nil
}

func filterBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Value
	var iterable starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &fn, &iterable); err != nil {
		return nil, err
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var out []starlark.Value
	var x starlark.Value
	for iter.Next(&x) {
		keep := x.Truth()
		if c, ok := fn.(starlark.Callable); ok {
			r, err := starlark.Call(thread, c, starlark.Tuple{x}, nil)
			if err != nil {
				return nil, err
			}
			keep = r.Truth()
		}
		if keep {
			out = append(out, x)
		}
	}
	return starlark.NewList(out), nil
}

// typeNames maps the builtin constructors usable with isinstance to the
// Type() strings they accept.
var typeNames = map[string][]string{
	"int":       {"int"},
	"float":     {"float", "int"},
	"str":       {"string"},
	"bool":      {"bool"},
	"list":      {"list"},
	"dict":      {"dict"},
	"tuple":     {"tuple"},
	"set":       {"set"},
	"DataFrame": {"DataFrame"},
	"Series":    {"Series"},
	"Timestamp": {"Timestamp"},
	"datetime":  {"Timestamp"},
	"date":      {"Timestamp"},
	"timedelta": {"Timedelta"},
	"Timedelta": {"Timedelta"},
}

func isinstanceBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, classes starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &classes); err != nil {
		return nil, err
	}
	candidates := starlark.Tuple{classes}
	if t, ok := classes.(starlark.Tuple); ok {
		candidates = t
	}
	for _, c := range candidates {
		var name string
		switch cv := c.(type) {
		case *starlark.Builtin:
			name = cv.Name()
		case *namespace:
			name = cv.name
		default:
			return nil, fmt.Errorf("isinstance() arg 2 must be a type or tuple of types")
		}
		for _, t := range typeNames[name] {
			if x.Type() == t {
				return starlark.True, nil
			}
		}
	}
	return starlark.False, nil
}

func divmodBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, y starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &y); err != nil {
		return nil, err
	}
	q, err := starlark.Binary(syntax.SLASHSLASH, x, y)
	if err != nil {
		return nil, err
	}
	r, err := starlark.Binary(syntax.PERCENT, x, y)
	if err != nil {
		return nil, err
	}
	return starlark.Tuple{q, r}, nil
}
