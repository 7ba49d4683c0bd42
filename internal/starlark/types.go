// Package starlark embeds the Starlark interpreter as the analysis language of
// the sandbox. It provides pandas-like DataFrame, Series and GroupBy values
// backed by pkg/frame, the capability modules (pd, np, math, json,
// statistics, datetime) and the execution context that runs one snippet.
package starlark

import (
	"fmt"
	"math"
	"time"

	"go.starlark.net/starlark"
)

// GoToStarlark converts a Go value to a Starlark value.
// Supported types: frame cells, []string, []any, map[string]any.
func GoToStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil, bool, int, int64, float64, string, time.Time, time.Duration:
		return CellToValue(val), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			sv, err := GoToStarlark(v)
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Starlark value back to a Go value.
// Returns frame cells, []any, map[string]any, or the value's string form.
// Series convert to a label-to-value map and frames to a list of records.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			f, _ := starlark.AsFloat(val)
			return f, nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case Timestamp:
		return time.Time(val), nil

	case Timedelta:
		return time.Duration(val), nil

	case *starlark.List:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case starlark.Tuple:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("tuple index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %s: %w", item[0], err)
			}
			result[KeyString(item[0])] = gv
		}
		return result, nil

	case *Series:
		result := make(map[string]any, val.s.Len())
		for i := 0; i < val.s.Len(); i++ {
			result[labelString(val.s.Label(i))] = val.s.At(i)
		}
		return result, nil

	case *Frame:
		records := val.df.Records()
		out := make([]any, len(records))
		for i, r := range records {
			out[i] = r
		}
		return out, nil

	default:
		return val.String(), nil
	}
}

// KeyString renders a mapping key: strings as-is, everything else in its
// Starlark form.
func KeyString(k starlark.Value) string {
	if s, ok := k.(starlark.String); ok {
		return string(s)
	}
	if t, ok := k.(Timestamp); ok {
		return t.String()
	}
	return k.String()
}

// CellToValue converts a frame cell to a Starlark value.
func CellToValue(v any) starlark.Value {
	switch val := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(val)
	case int64:
		return starlark.MakeInt64(val)
	case int:
		return starlark.MakeInt(val)
	case float64:
		return starlark.Float(val)
	case string:
		return starlark.String(val)
	case time.Time:
		return Timestamp(val)
	case time.Duration:
		return Timedelta(val)
	case []any:
		tup := make(starlark.Tuple, len(val))
		for i, item := range val {
			tup[i] = CellToValue(item)
		}
		return tup
	}
	return starlark.String(fmt.Sprint(v))
}

// ValueToCell converts a scalar Starlark value to a frame cell.
func ValueToCell(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		f, _ := starlark.AsFloat(val)
		return f, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case Timestamp:
		return time.Time(val), nil
	case Timedelta:
		return time.Duration(val), nil
	case starlark.Tuple:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := ValueToCell(item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a scalar, got %s", v.Type())
}

// cellsOf converts an iterable of scalars to cells.
func cellsOf(v starlark.Value) ([]any, error) {
	switch val := v.(type) {
	case *Series:
		return val.s.Values(), nil
	case starlark.Iterable:
		var out []any
		iter := val.Iterate()
		defer iter.Done()
		var x starlark.Value
		for iter.Next(&x) {
			c, err := ValueToCell(x)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list, got %s", v.Type())
}

// stringsOf accepts a string or an iterable of strings.
func stringsOf(v starlark.Value) ([]string, error) {
	if s, ok := v.(starlark.String); ok {
		return []string{string(s)}, nil
	}
	iter, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("expected a column name or list of names, got %s", v.Type())
	}
	var out []string
	it := iter.Iterate()
	defer it.Done()
	var x starlark.Value
	for it.Next(&x) {
		s, ok := x.(starlark.String)
		if !ok {
			return nil, fmt.Errorf("column names must be strings, got %s", x.Type())
		}
		out = append(out, string(s))
	}
	return out, nil
}

// boolsOf accepts a bool or an iterable of bools, one per entry of n.
func boolsOf(v starlark.Value, n int) ([]bool, error) {
	if b, ok := v.(starlark.Bool); ok {
		out := make([]bool, n)
		for i := range out {
			out[i] = bool(b)
		}
		return out, nil
	}
	cells, err := cellsOf(v)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(cells))
	for i, c := range cells {
		b, ok := c.(bool)
		if !ok {
			return nil, fmt.Errorf("ascending must be a bool or list of bools")
		}
		out[i] = b
	}
	return out, nil
}

// floatOf converts a numeric value, treating None as NaN.
func floatOf(v starlark.Value) (float64, bool) {
	if v == starlark.None {
		return math.NaN(), true
	}
	return starlark.AsFloat(v)
}
