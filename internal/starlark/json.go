package starlark

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// JSONStyle selects the separators and float rendering of an encoding.
type JSONStyle int

const (
	// Compact uses "," and ":" and prints integral floats without ".0".
	// Non-finite floats become null.
	Compact JSONStyle = iota
	// Pythonic matches json.dumps: ", " and ": ", 1.0 stays 1.0 and NaN
	// prints as NaN.
	Pythonic
)

// EncodeJSON encodes v preserving dict insertion order. Series encode as a
// label-to-value object and frames as a list of records.
func EncodeJSON(v starlark.Value, style JSONStyle) (string, error) {
	e := &jsonEncoder{style: style}
	if err := e.value(v, 0); err != nil {
		return "", err
	}
	return e.buf.String(), nil
}

type jsonEncoder struct {
	buf   bytes.Buffer
	style JSONStyle
}

const maxJSONDepth = 64

func (e *jsonEncoder) sep() string {
	if e.style == Pythonic {
		return ", "
	}
	return ","
}

func (e *jsonEncoder) colon() string {
	if e.style == Pythonic {
		return ": "
	}
	return ":"
}

func (e *jsonEncoder) str(s string) {
	b, _ := json.Marshal(s)
	e.buf.Write(b)
}

func (e *jsonEncoder) float(f float64) {
	switch {
	case math.IsNaN(f):
		if e.style == Pythonic {
			e.buf.WriteString("NaN")
		} else {
			e.buf.WriteString("null")
		}
	case math.IsInf(f, 0):
		switch {
		case e.style != Pythonic:
			e.buf.WriteString("null")
		case f > 0:
			e.buf.WriteString("Infinity")
		default:
			e.buf.WriteString("-Infinity")
		}
	case e.style == Pythonic:
		e.buf.WriteString(starlark.Float(f).String())
	default:
		e.buf.WriteString(frame.FormatFloat(f))
	}
}

func (e *jsonEncoder) cell(c any, depth int) error {
	switch v := c.(type) {
	case time.Time:
		e.str(frame.FormatValue(v))
		return nil
	case time.Duration:
		e.str(frame.FormatDuration(v))
		return nil
	}
	return e.value(CellToValue(c), depth)
}

func (e *jsonEncoder) value(v starlark.Value, depth int) error {
	if depth > maxJSONDepth {
		return fmt.Errorf("json: value nested too deeply")
	}
	switch val := v.(type) {
	case starlark.NoneType:
		e.buf.WriteString("null")
	case starlark.Bool:
		if val {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
	case starlark.Int:
		e.buf.WriteString(val.String())
	case starlark.Float:
		e.float(float64(val))
	case starlark.String:
		e.str(string(val))
	case Timestamp, Timedelta:
		e.str(val.String())
	case *starlark.List:
		return e.seq(val, val.Len(), depth)
	case starlark.Tuple:
		return e.seq(val, val.Len(), depth)
	case *starlark.Dict:
		e.buf.WriteByte('{')
		for i, item := range val.Items() {
			if i > 0 {
				e.buf.WriteString(e.sep())
			}
			e.str(KeyString(item[0]))
			e.buf.WriteString(e.colon())
			if err := e.value(item[1], depth+1); err != nil {
				return err
			}
		}
		e.buf.WriteByte('}')
	case *Series:
		e.buf.WriteByte('{')
		for i := 0; i < val.s.Len(); i++ {
			if i > 0 {
				e.buf.WriteString(e.sep())
			}
			e.str(labelString(val.s.Label(i)))
			e.buf.WriteString(e.colon())
			if err := e.cell(val.s.At(i), depth+1); err != nil {
				return err
			}
		}
		e.buf.WriteByte('}')
	case *Frame:
		cols := val.df.Columns()
		e.buf.WriteByte('[')
		for r := 0; r < val.df.Len(); r++ {
			if r > 0 {
				e.buf.WriteString(e.sep())
			}
			row := val.df.RowValues(r)
			e.buf.WriteByte('{')
			for c, name := range cols {
				if c > 0 {
					e.buf.WriteString(e.sep())
				}
				e.str(name)
				e.buf.WriteString(e.colon())
				if err := e.cell(row[c], depth+1); err != nil {
					return err
				}
			}
			e.buf.WriteByte('}')
		}
		e.buf.WriteByte(']')
	case starlark.Iterable:
		var items []starlark.Value
		it := val.Iterate()
		defer it.Done()
		var x starlark.Value
		for it.Next(&x) {
			items = append(items, x)
		}
		return e.seq(starlark.Tuple(items), len(items), depth)
	default:
		return fmt.Errorf("json: cannot encode %s", v.Type())
	}
	return nil
}

func (e *jsonEncoder) seq(s starlark.Indexable, n, depth int) error {
	e.buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			e.buf.WriteString(e.sep())
		}
		if err := e.value(s.Index(i), depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

// jsonDumps implements json.dumps(obj, indent=None, default=None).
func jsonDumps(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var obj starlark.Value
	var indent, def starlark.Value = starlark.None, starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "obj", &obj, "indent?", &indent, "default?", &def, "sort_keys?", new(bool), "ensure_ascii?", new(bool)); err != nil {
		return nil, err
	}
	s, err := EncodeJSON(obj, Pythonic)
	if err != nil {
		return nil, err
	}
	if n, err := optInt(indent, -1); err == nil && n >= 0 {
		compact, err := EncodeJSON(obj, Compact)
		if err == nil {
			var out bytes.Buffer
			if json.Indent(&out, []byte(compact), "", strings.Repeat(" ", n)) == nil {
				return starlark.String(out.String()), nil
			}
		}
	}
	return starlark.String(s), nil
}
