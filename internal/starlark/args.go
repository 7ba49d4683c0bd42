package starlark

import (
	"fmt"
	"slices"

	"go.starlark.net/starlark"
)

// method builds a builtin whose receiver is bound with BindReceiver.
func method[T starlark.Value](name string, fn func(thread *starlark.Thread, recv T, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		recv, ok := b.Receiver().(T)
		if !ok {
			return nil, fmt.Errorf("%s: unbound method", name)
		}
		return fn(thread, recv, args, kwargs)
	})
}

// ignoredKwargs are pandas keyword arguments with no effect on immutable frames.
var ignoredKwargs = []string{"skipna", "numeric_only", "axis", "dropna", "sort", "observed", "errors", "kind", "na_position"}

// unpack is starlark.UnpackArgs after dropping ignoredKwargs.
func unpack(fnName string, args starlark.Tuple, kwargs []starlark.Tuple, pairs ...any) error {
	kept := kwargs[:0:0]
	for _, kv := range kwargs {
		if k, ok := kv[0].(starlark.String); ok && slices.Contains(ignoredKwargs, string(k)) {
			continue
		}
		kept = append(kept, kv)
	}
	return starlark.UnpackArgs(fnName, args, kept, pairs...)
}

// optInt converts an optional integer argument.
func optInt(v starlark.Value, def int) (int, error) {
	if v == nil || v == starlark.None {
		return def, nil
	}
	return starlark.AsInt32(v)
}

// optBool converts an optional truth value.
func optBool(v starlark.Value, def bool) bool {
	if v == nil || v == starlark.None {
		return def
	}
	return bool(v.Truth())
}

// optString converts an optional string argument.
func optString(v starlark.Value, def string) (string, error) {
	if v == nil || v == starlark.None {
		return def, nil
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("expected a string, got %s", v.Type())
	}
	return s, nil
}

// listOf builds a Starlark list from cells.
func listOf(cells []any) *starlark.List {
	items := make([]starlark.Value, len(cells))
	for i, c := range cells {
		items[i] = CellToValue(c)
	}
	return starlark.NewList(items)
}

// cellIterator iterates frame cells as Starlark values.
type cellIterator struct {
	cells []any
	i     int
}

func (it *cellIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.cells) {
		return false
	}
	*p = CellToValue(it.cells[it.i])
	it.i++
	return true
}

func (it *cellIterator) Done() {}

// valueIterator iterates prepared Starlark values.
type valueIterator struct {
	values []starlark.Value
	i      int
}

func (it *valueIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.values) {
		return false
	}
	*p = it.values[it.i]
	it.i++
	return true
}

func (it *valueIterator) Done() {}

// attrNames merges plain attribute names with method names, sorted.
func attrNames(attrs []string, methods map[string]*starlark.Builtin) []string {
	names := append([]string(nil), attrs...)
	for name := range methods {
		names = append(names, name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}
