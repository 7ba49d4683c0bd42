package starlark

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.starlark.net/starlark"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// formatSpec is a parsed format specification:
// [[fill]align][sign][#][0][width][grouping][.precision][type].
type formatSpec struct {
	fill      rune
	align     byte
	sign      byte
	alternate bool
	width     int
	grouping  byte
	precision int // -1 when absent
	verb      byte
}

var specPattern = regexp.MustCompile(`^(?:(.)?([<>=^]))?([+\- ])?(#)?(0)?(\d+)?([,_])?(?:\.(\d+))?([bcdeEfFgGnosxX%])?$`)

var groupPrinter = message.NewPrinter(language.English)

func parseSpec(spec string) (formatSpec, error) {
	m := specPattern.FindStringSubmatch(spec)
	if m == nil {
		return formatSpec{}, fmt.Errorf("invalid format specifier %q", spec)
	}
	fs := formatSpec{fill: ' ', precision: -1}
	if m[1] != "" {
		fs.fill, _ = utf8.DecodeRuneInString(m[1])
	}
	if m[2] != "" {
		fs.align = m[2][0]
	}
	if m[3] != "" {
		fs.sign = m[3][0]
	}
	fs.alternate = m[4] != ""
	if m[5] != "" && m[2] == "" {
		fs.fill, fs.align = '0', '='
	}
	if m[6] != "" {
		fs.width, _ = strconv.Atoi(m[6])
	}
	if m[7] != "" {
		fs.grouping = m[7][0]
	}
	if m[8] != "" {
		fs.precision, _ = strconv.Atoi(m[8])
	}
	if m[9] != "" {
		fs.verb = m[9][0]
	}
	return fs, nil
}

// FormatSpec applies a format specification to a value the way an f-string
// replacement field does.
func FormatSpec(v starlark.Value, spec string) (string, error) {
	if spec == "" {
		if s, ok := starlark.AsString(v); ok {
			return s, nil
		}
		return v.String(), nil
	}
	switch val := v.(type) {
	case Timestamp:
		return Strftime(time.Time(val), spec), nil
	case starlark.String:
		fs, err := parseSpec(spec)
		if err != nil {
			return "", err
		}
		if fs.verb != 0 && fs.verb != 's' {
			return "", fmt.Errorf("unknown format code '%c' for object of type 'str'", fs.verb)
		}
		s := string(val)
		if fs.precision >= 0 && utf8.RuneCountInString(s) > fs.precision {
			s = string([]rune(s)[:fs.precision])
		}
		return fs.pad("", s, '<'), nil
	case starlark.Bool:
		fs, err := parseSpec(spec)
		if err != nil {
			return "", err
		}
		if fs.verb == 0 || fs.verb == 's' {
			return fs.pad("", val.String(), '<'), nil
		}
		n := int64(0)
		if val {
			n = 1
		}
		return formatNumber(fs, float64(n), true)
	case starlark.Int:
		fs, err := parseSpec(spec)
		if err != nil {
			return "", err
		}
		f, _ := starlark.AsFloat(val)
		return formatNumber(fs, f, true)
	case starlark.Float:
		fs, err := parseSpec(spec)
		if err != nil {
			return "", err
		}
		return formatNumber(fs, float64(val), false)
	}
	return "", fmt.Errorf("unsupported format string passed to %s.__format__", v.Type())
}

func formatNumber(fs formatSpec, f float64, integral bool) (string, error) {
	verb := fs.verb
	if verb == 'n' {
		verb = 0
	}
	neg := f < 0 || (f == 0 && math.Signbit(f))
	abs := math.Abs(f)

	var body string
	switch verb {
	case 'd':
		if !integral && abs != math.Trunc(abs) {
			return "", fmt.Errorf("unknown format code 'd' for object of type 'float'")
		}
		body = groupDigits(strconv.FormatFloat(abs, 'f', 0, 64), fs.grouping)
	case 'b', 'o', 'x', 'X':
		if !integral {
			return "", fmt.Errorf("unknown format code '%c' for object of type 'float'", verb)
		}
		base := map[byte]int{'b': 2, 'o': 8, 'x': 16, 'X': 16}[verb]
		body = strconv.FormatInt(int64(abs), base)
		if verb == 'X' {
			body = strings.ToUpper(body)
		}
		if fs.alternate {
			body = "0" + string(verb) + body
		}
	case 'c', 's':
		return "", fmt.Errorf("unknown format code '%c' for a number", verb)
	case 'f', 'F':
		body = fixed(abs, precisionOr(fs.precision, 6), fs.grouping)
	case '%':
		body = fixed(abs*100, precisionOr(fs.precision, 6), fs.grouping) + "%"
	case 'e', 'E':
		body = strconv.FormatFloat(abs, 'e', precisionOr(fs.precision, 6), 64)
		if verb == 'E' {
			body = strings.ToUpper(body)
		}
	case 'g', 'G':
		p := precisionOr(fs.precision, 6)
		if p == 0 {
			p = 1
		}
		body = generalFloat(abs, p)
		if verb == 'G' {
			body = strings.ToUpper(body)
		}
	default:
		switch {
		case integral:
			body = groupDigits(strconv.FormatFloat(abs, 'f', 0, 64), fs.grouping)
		case fs.precision >= 0:
			body = generalFloat(abs, max(fs.precision, 1))
		default:
			body = reprFloat(abs, fs.grouping)
		}
	}
	if math.IsNaN(f) {
		body, neg = "nan", false
	} else if math.IsInf(f, 0) {
		body = "inf"
	}

	sign := ""
	switch {
	case neg:
		sign = "-"
	case fs.sign == '+':
		sign = "+"
	case fs.sign == ' ':
		sign = " "
	}
	return fs.pad(sign, body, '>'), nil
}

func precisionOr(p, def int) int {
	if p < 0 {
		return def
	}
	return p
}

// fixed formats f with prec decimals, grouping the integer part.
func fixed(f float64, prec int, grouping byte) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if grouping == 0 {
		return s
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	whole = groupDigits(whole, grouping)
	if hasFrac {
		return whole + "." + frac
	}
	return whole
}

func groupDigits(digits string, sep byte) string {
	if sep == 0 || len(digits) <= 3 {
		return digits
	}
	if sep == ',' {
		if n, err := strconv.ParseInt(digits, 10, 64); err == nil {
			return groupPrinter.Sprintf("%d", n)
		}
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// generalFloat implements the 'g' presentation type.
func generalFloat(f float64, prec int) string {
	if f == 0 {
		return "0"
	}
	exp := int(math.Floor(math.Log10(f)))
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(f, 'e', prec-1, 64), 64)
	if rounded != 0 {
		exp = int(math.Floor(math.Log10(rounded)))
	}
	if exp < -4 || exp >= prec {
		s := strconv.FormatFloat(f, 'e', prec-1, 64)
		mant, e, _ := strings.Cut(s, "e")
		if strings.Contains(mant, ".") {
			mant = strings.TrimRight(strings.TrimRight(mant, "0"), ".")
		}
		return mant + "e" + e
	}
	s := strconv.FormatFloat(f, 'f', max(prec-1-exp, 0), 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

// reprFloat renders the shortest round-tripping form, always with a decimal
// point or exponent.
func reprFloat(f float64, grouping byte) string {
	if f != 0 && (f >= 1e16 || f < 1e-4) {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		return s
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	whole, frac, hasFrac := strings.Cut(s, ".")
	whole = groupDigits(whole, grouping)
	if !hasFrac {
		frac = "0"
	}
	return whole + "." + frac
}

// pad aligns sign+body within the field width. defAlign applies when the
// spec gives none.
func (fs formatSpec) pad(sign, body string, defAlign byte) string {
	n := utf8.RuneCountInString(sign) + utf8.RuneCountInString(body)
	if fs.width <= n {
		return sign + body
	}
	fill := strings.Repeat(string(fs.fill), fs.width-n)
	align := fs.align
	if align == 0 {
		align = defAlign
	}
	switch align {
	case '<':
		return sign + body + fill
	case '^':
		left := (fs.width - n) / 2
		return strings.Repeat(string(fs.fill), left) + sign + body + strings.Repeat(string(fs.fill), fs.width-n-left)
	case '=':
		return sign + fill + body
	}
	return fill + sign + body
}
