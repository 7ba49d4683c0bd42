package starlark

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// Index is the column or row labels of a frame. Membership tests values,
// integer subscripts are positional.
type Index struct {
	labels []any
}

var (
	_ starlark.Mapping  = (*Index)(nil)
	_ starlark.Sequence = (*Index)(nil)
	_ starlark.HasAttrs = (*Index)(nil)
)

func (x *Index) String() string {
	b := []byte("Index([")
	for i, l := range x.labels {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, CellToValue(l).String()...)
	}
	return string(append(b, "])"...))
}

func (x *Index) Type() string               { return "Index" }
func (x *Index) Freeze()                    {}
func (x *Index) Truth() starlark.Bool       { return len(x.labels) > 0 }
func (x *Index) Hash() (uint32, error)      { return 0, fmt.Errorf("unhashable type: Index") }
func (x *Index) Len() int                   { return len(x.labels) }
func (x *Index) Iterate() starlark.Iterator { return &cellIterator{cells: x.labels} }

func (x *Index) Get(k starlark.Value) (starlark.Value, bool, error) {
	if i, ok := k.(starlark.Int); ok {
		n, ok := i.Int64()
		if ok && !x.hasInts() {
			pos := int(n)
			if pos < 0 {
				pos += len(x.labels)
			}
			if pos < 0 || pos >= len(x.labels) {
				return nil, false, fmt.Errorf("index %d out of range [0:%d]", n, len(x.labels))
			}
			return CellToValue(x.labels[pos]), true, nil
		}
	}
	c, err := ValueToCell(k)
	if err != nil {
		return nil, false, nil
	}
	for _, l := range x.labels {
		if frame.Equal(l, c) {
			return CellToValue(l), true, nil
		}
	}
	if n, ok := c.(int64); ok && int(n) < len(x.labels) && n >= 0 {
		return CellToValue(x.labels[n]), true, nil
	}
	return nil, false, nil
}

func (x *Index) hasInts() bool {
	for _, l := range x.labels {
		if _, ok := l.(int64); ok {
			return true
		}
	}
	return false
}

var indexMethods map[string]*starlark.Builtin

func (x *Index) AttrNames() []string {
	return attrNames([]string{"values", "size", "empty", "name"}, indexMethods)
}

func (x *Index) Attr(name string) (starlark.Value, error) {
	switch name {
	case "values":
		return listOf(x.labels), nil
	case "size":
		return starlark.MakeInt(len(x.labels)), nil
	case "empty":
		return starlark.Bool(len(x.labels) == 0), nil
	case "name":
		return starlark.None, nil
	}
	if m, ok := indexMethods[name]; ok {
		return m.BindReceiver(x), nil
	}
	return nil, nil
}

func indexToList(_ *starlark.Thread, x *Index, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack("tolist", args, kwargs); err != nil {
		return nil, err
	}
	return listOf(x.labels), nil
}

func init() {
	indexMethods = map[string]*starlark.Builtin{
		"tolist":  method("tolist", indexToList),
		"to_list": method("to_list", indexToList),
	}
}
