package starlark

import (
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// Timestamp is a point in time, exposed with the attributes of a pandas
// Timestamp or Python datetime.
type Timestamp time.Time

var (
	_ starlark.HasAttrs   = Timestamp{}
	_ starlark.HasBinary  = Timestamp{}
	_ starlark.Comparable = Timestamp{}
)

func (t Timestamp) String() string        { return frame.FormatValue(time.Time(t)) }
func (t Timestamp) Type() string          { return "Timestamp" }
func (t Timestamp) Freeze()               {}
func (t Timestamp) Truth() starlark.Bool  { return starlark.True }
func (t Timestamp) Hash() (uint32, error) { return starlark.String(t.String()).Hash() }

func (t Timestamp) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	c := time.Time(t).Compare(time.Time(y.(Timestamp)))
	return compareOrdering(op, c), nil
}

func (t Timestamp) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	var other any
	switch yv := y.(type) {
	case Timestamp:
		other = time.Time(yv)
	case Timedelta:
		other = time.Duration(yv)
	default:
		return nil, nil
	}
	a, b := any(time.Time(t)), other
	if side == starlark.Right {
		a, b = b, a
	}
	name, ok := arithOps[op]
	if !ok {
		return nil, nil
	}
	r, err := frame.ArithValue(name, a, b)
	if err != nil {
		return nil, err
	}
	return CellToValue(r), nil
}

var timestampAttrs = []string{
	"year", "month", "day", "hour", "minute", "second", "dayofweek", "quarter",
	"date", "weekday", "strftime", "isoformat", "day_name", "month_name", "normalize", "replace",
}

func (t Timestamp) AttrNames() []string { return timestampAttrs }

func (t Timestamp) Attr(name string) (starlark.Value, error) {
	tm := time.Time(t)
	switch name {
	case "year":
		return starlark.MakeInt(tm.Year()), nil
	case "month":
		return starlark.MakeInt(int(tm.Month())), nil
	case "day":
		return starlark.MakeInt(tm.Day()), nil
	case "hour":
		return starlark.MakeInt(tm.Hour()), nil
	case "minute":
		return starlark.MakeInt(tm.Minute()), nil
	case "second":
		return starlark.MakeInt(tm.Second()), nil
	case "dayofweek":
		return starlark.MakeInt(pyWeekday(tm)), nil
	case "quarter":
		return starlark.MakeInt((int(tm.Month())-1)/3 + 1), nil
	}
	if m, ok := timestampMethods[name]; ok {
		return m.BindReceiver(t), nil
	}
	return nil, nil
}

var timestampMethods = map[string]*starlark.Builtin{
	"date": starlark.NewBuiltin("date", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
			return nil, err
		}
		return Timestamp(truncateDay(time.Time(b.Receiver().(Timestamp)))), nil
	}),
	"normalize": starlark.NewBuiltin("normalize", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
			return nil, err
		}
		return Timestamp(truncateDay(time.Time(b.Receiver().(Timestamp)))), nil
	}),
	"weekday": starlark.NewBuiltin("weekday", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
			return nil, err
		}
		return starlark.MakeInt(pyWeekday(time.Time(b.Receiver().(Timestamp)))), nil
	}),
	"strftime": starlark.NewBuiltin("strftime", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var layout string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "format", &layout); err != nil {
			return nil, err
		}
		return starlark.String(Strftime(time.Time(b.Receiver().(Timestamp)), layout)), nil
	}),
	"isoformat": starlark.NewBuiltin("isoformat", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
			return nil, err
		}
		return starlark.String(time.Time(b.Receiver().(Timestamp)).Format("2006-01-02T15:04:05")), nil
	}),
	"day_name": starlark.NewBuiltin("day_name", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
			return nil, err
		}
		return starlark.String(time.Time(b.Receiver().(Timestamp)).Weekday().String()), nil
	}),
	"month_name": starlark.NewBuiltin("month_name", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
			return nil, err
		}
		return starlark.String(time.Time(b.Receiver().(Timestamp)).Month().String()), nil
	}),
	"replace": starlark.NewBuiltin("replace", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		tm := time.Time(b.Receiver().(Timestamp))
		year, month, day := tm.Year(), int(tm.Month()), tm.Day()
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "year?", &year, "month?", &month, "day?", &day); err != nil {
			return nil, err
		}
		return Timestamp(time.Date(year, time.Month(month), day, tm.Hour(), tm.Minute(), tm.Second(), tm.Nanosecond(), tm.Location())), nil
	}),
}

// pyWeekday numbers days Monday=0 to Sunday=6.
func pyWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

var strftimeCodes = map[byte]string{
	'Y': "2006", 'y': "06", 'm': "01", 'd': "02", 'B': "January", 'b': "Jan",
	'A': "Monday", 'a': "Mon", 'H': "15", 'I': "03", 'M': "04", 'S': "05",
	'p': "PM", 'Z': "MST", 'z': "-0700",
}

// Strftime formats t with a C-style format string.
func Strftime(t time.Time, format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			b.WriteByte(c)
			continue
		}
		i++
		switch code := format[i]; code {
		case '%':
			b.WriteByte('%')
		case 'j':
			fmt.Fprintf(&b, "%03d", t.YearDay())
		case 'e':
			fmt.Fprintf(&b, "%2d", t.Day())
		default:
			if layout, ok := strftimeCodes[code]; ok {
				b.WriteString(t.Format(layout))
			} else {
				b.WriteByte('%')
				b.WriteByte(code)
			}
		}
	}
	return b.String()
}

// Strptime parses s with a C-style format string.
func Strptime(s, format string) (time.Time, error) {
	var layout strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			layout.WriteByte(c)
			continue
		}
		i++
		if l, ok := strftimeCodes[format[i]]; ok {
			layout.WriteString(l)
		} else {
			layout.WriteByte(format[i])
		}
	}
	return time.Parse(layout.String(), s)
}

// Timedelta is a duration, exposed like a pandas Timedelta.
type Timedelta time.Duration

var (
	_ starlark.HasAttrs   = Timedelta(0)
	_ starlark.HasBinary  = Timedelta(0)
	_ starlark.HasUnary   = Timedelta(0)
	_ starlark.Comparable = Timedelta(0)
)

func (d Timedelta) String() string        { return frame.FormatDuration(time.Duration(d)) }
func (d Timedelta) Type() string          { return "Timedelta" }
func (d Timedelta) Freeze()               {}
func (d Timedelta) Truth() starlark.Bool  { return d != 0 }
func (d Timedelta) Hash() (uint32, error) { return starlark.MakeInt64(int64(d)).Hash() }

func (d Timedelta) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	a, b := d, y.(Timedelta)
	c := 0
	switch {
	case a < b:
		c = -1
	case a > b:
		c = 1
	}
	return compareOrdering(op, c), nil
}

func (d Timedelta) Unary(op syntax.Token) (starlark.Value, error) {
	switch op {
	case syntax.MINUS:
		return -d, nil
	case syntax.PLUS:
		return d, nil
	}
	return nil, nil
}

func (d Timedelta) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	other, err := ValueToCell(y)
	if err != nil {
		return nil, nil
	}
	name, ok := arithOps[op]
	if !ok {
		return nil, nil
	}
	a, b := any(time.Duration(d)), other
	if side == starlark.Right {
		a, b = b, a
	}
	r, err := frame.ArithValue(name, a, b)
	if err != nil {
		return nil, err
	}
	return CellToValue(r), nil
}

func (d Timedelta) AttrNames() []string {
	return []string{"days", "seconds", "total_seconds"}
}

func (d Timedelta) Attr(name string) (starlark.Value, error) {
	dur := time.Duration(d)
	switch name {
	case "days":
		return starlark.MakeInt64(floorDays(dur)), nil
	case "seconds":
		rest := dur - time.Duration(floorDays(dur))*24*time.Hour
		return starlark.MakeInt64(int64(rest / time.Second)), nil
	case "total_seconds":
		return starlark.NewBuiltin("total_seconds", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			return starlark.Float(dur.Seconds()), nil
		}), nil
	}
	return nil, nil
}

// floorDays returns whole days, rounding towards negative infinity like
// Python's timedelta.days.
func floorDays(d time.Duration) int64 {
	day := 24 * time.Hour
	n := int64(d / day)
	if d%day < 0 {
		n--
	}
	return n
}

func compareOrdering(op syntax.Token, c int) bool {
	switch op {
	case syntax.EQL:
		return c == 0
	case syntax.NEQ:
		return c != 0
	case syntax.LT:
		return c < 0
	case syntax.LE:
		return c <= 0
	case syntax.GT:
		return c > 0
	case syntax.GE:
		return c >= 0
	}
	return false
}

// arithOps maps Starlark binary tokens to frame operator names.
var arithOps = map[syntax.Token]string{
	syntax.PLUS:       frame.OpAdd,
	syntax.MINUS:      frame.OpSub,
	syntax.STAR:       frame.OpMul,
	syntax.SLASH:      frame.OpDiv,
	syntax.SLASHSLASH: frame.OpFloorDiv,
	syntax.PERCENT:    frame.OpMod,
}

// compareOps maps comparison operator text to Starlark tokens.
var compareOps = map[string]syntax.Token{
	frame.OpLT: syntax.LT,
	frame.OpLE: syntax.LE,
	frame.OpGT: syntax.GT,
	frame.OpGE: syntax.GE,
	frame.OpEQ: syntax.EQL,
	frame.OpNE: syntax.NEQ,
}
