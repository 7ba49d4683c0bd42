package sandbox

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	starctx "github.com/leapstack-labs/leapinsight/internal/starlark"
)

// ErrTranslate is wrapped by every translation failure.
var ErrTranslate = errors.New("failed to translate snippet")

// Translate rewrites the Python constructs Starlark lacks into calls to the
// runtime helpers: import statements, f-strings, the power operator and
// identity comparisons. Code inside string literals is never touched.
func Translate(code string) (string, error) {
	code, err := translateFStrings(code)
	if err != nil {
		return "", err
	}
	code = translateImports(code)
	code = translateIdentity(code)
	code = translatePow(code)
	return code, nil
}

// literal is one string literal in a piece of source.
type literal struct {
	start, end    int // whole literal, prefix and quotes included
	body, bodyEnd int
	prefix        string // lower-cased
	quote         string
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}

func isPrefixByte(c byte) bool {
	switch c {
	case 'r', 'R', 'b', 'B', 'u', 'U', 'f', 'F':
		return true
	}
	return false
}

// scan finds the string literals of code and returns a mask of the same
// length in which literal bodies and comments are blanked.
func scan(code string) ([]literal, string) {
	var lits []literal
	mask := []byte(code)
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c == '#' {
			for i < len(code) && code[i] != '\n' {
				mask[i] = ' '
				i++
			}
			continue
		}
		if c != '\'' && c != '"' {
			continue
		}
		start := i
		for start > 0 && i-start < 2 && isPrefixByte(code[start-1]) {
			start--
		}
		if start > 0 && isIdentByte(code[start-1]) {
			start = i
		}
		quote := string(c)
		if strings.HasPrefix(code[i:], strings.Repeat(quote, 3)) {
			quote = strings.Repeat(quote, 3)
		}
		lit := literal{start: start, body: i + len(quote), prefix: strings.ToLower(code[start:i]), quote: quote}
		j := lit.body
		for j < len(code) {
			if code[j] == '\\' {
				j += 2
				continue
			}
			if strings.HasPrefix(code[j:], quote) {
				break
			}
			if code[j] == '\n' && len(quote) == 1 {
				break
			}
			j++
		}
		lit.bodyEnd = min(j, len(code))
		lit.end = min(j+len(quote), len(code))
		if lit.bodyEnd < len(code) && code[lit.bodyEnd] == '\n' {
			lit.end = lit.bodyEnd
		}
		for k := lit.body; k < lit.bodyEnd; k++ {
			if mask[k] != '\n' {
				mask[k] = ' '
			}
		}
		lits = append(lits, lit)
		i = lit.end - 1
	}
	return lits, string(mask)
}

// translateFStrings replaces every f-string with a concatenation of its
// literal parts and _fmt calls.
func translateFStrings(code string) (string, error) {
	lits, _ := scan(code)
	for i := len(lits) - 1; i >= 0; i-- {
		lit := lits[i]
		if !strings.Contains(lit.prefix, "f") {
			continue
		}
		expr, err := fstring(lit, code[lit.body:lit.bodyEnd])
		if err != nil {
			return "", err
		}
		code = code[:lit.start] + expr + code[lit.end:]
	}
	return code, nil
}

func fstring(lit literal, body string) (string, error) {
	prefix := strings.ReplaceAll(lit.prefix, "f", "")
	quoted := func(s string) string { return prefix + lit.quote + s + lit.quote }

	var parts []string
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			parts = append(parts, quoted(text.String()))
			text.Reset()
		}
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body):
			text.WriteString(body[i : i+2])
			i++
		case c == '{' && strings.HasPrefix(body[i:], "{{"):
			text.WriteByte('{')
			i++
		case c == '}' && strings.HasPrefix(body[i:], "}}"):
			text.WriteByte('}')
			i++
		case c == '}':
			return "", fmt.Errorf("%w: single '}' is not allowed in f-string", ErrTranslate)
		case c == '{':
			end, conv, colon := fieldBounds(body, i+1)
			if end < 0 {
				return "", fmt.Errorf("%w: expecting '}' in f-string", ErrTranslate)
			}
			exprEnd := end
			if colon >= 0 {
				exprEnd = colon
			}
			if conv >= 0 {
				exprEnd = conv
			}
			source := body[i+1 : exprEnd]
			expr := strings.TrimSpace(source)
			spec := ""
			if colon >= 0 {
				spec = body[colon+1 : end]
			}
			convChar := byte(0)
			if conv >= 0 && conv+1 < len(body) {
				convChar = body[conv+1]
			}
			if selfDoc(expr) {
				text.WriteString(source)
				expr = strings.TrimSpace(strings.TrimSuffix(expr, "="))
				if convChar == 0 && spec == "" {
					convChar = 'r'
				}
			}
			if expr == "" {
				return "", fmt.Errorf("%w: f-string: empty expression not allowed", ErrTranslate)
			}
			flush()
			field, err := fieldExpr(lit, expr, convChar, spec)
			if err != nil {
				return "", err
			}
			parts = append(parts, field)
			i = end
		default:
			text.WriteByte(c)
		}
	}
	flush()
	if len(parts) == 0 {
		return quoted(""), nil
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " + ") + ")", nil
}

// fieldBounds finds the closing brace of the replacement field starting at
// from, and the positions of its conversion '!' and format ':' at depth 0.
func fieldBounds(body string, from int) (end, conv, colon int) {
	conv, colon = -1, -1
	depth := 0
	var quote byte
	for j := from; j < len(body); j++ {
		c := body[j]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			if colon < 0 {
				quote = c
			}
		case '(', '[', '{':
			depth++
		case ')', ']':
			depth--
		case '}':
			if depth == 0 {
				return j, conv, colon
			}
			depth--
		case '!':
			if depth == 0 && colon < 0 && conv < 0 && !strings.HasPrefix(body[j:], "!=") {
				conv = j
			}
		case ':':
			if depth == 0 && colon < 0 {
				colon = j
			}
		}
	}
	return -1, -1, -1
}

func selfDoc(expr string) bool {
	if !strings.HasSuffix(expr, "=") {
		return false
	}
	for _, op := range []string{"==", "!=", "<=", ">="} {
		if strings.HasSuffix(expr, op) {
			return false
		}
	}
	return true
}

func fieldExpr(lit literal, expr string, conv byte, spec string) (string, error) {
	expr, err := Translate(expr)
	if err != nil {
		return "", err
	}
	switch conv {
	case 0:
	case 'r', 'a':
		expr = "repr(" + expr + ")"
	case 's':
		expr = "str(" + expr + ")"
	default:
		return "", fmt.Errorf("%w: f-string: invalid conversion character %q", ErrTranslate, conv)
	}
	specExpr := strconv.Quote(spec)
	if strings.Contains(spec, "{") {
		nested, err := fstring(literal{prefix: lit.prefix, quote: `"`}, spec)
		if err != nil {
			return "", err
		}
		specExpr = nested
	}
	return starctx.HelperFormat + "(" + expr + ", " + specExpr + ")", nil
}

var (
	importStmt = regexp.MustCompile(`^import\s+(.+)$`)
	fromStmt   = regexp.MustCompile(`^from\s+([\w.]+)\s+import\s+(.+)$`)
	importItem = regexp.MustCompile(`^([\w.]+)(?:\s+as\s+(\w+))?$`)
)

// translateImports turns import statements into bindings resolved by
// _import against the capability table.
func translateImports(code string) string {
	_, mask := scan(code)
	type span struct{ start, end int }
	var stmts []span
	depth, start := 0, 0
	for i := 0; i <= len(mask); i++ {
		if i < len(mask) {
			switch mask[i] {
			case '(', '[', '{':
				depth++
				continue
			case ')', ']', '}':
				depth--
				continue
			case ';', '\n':
				if depth > 0 {
					continue
				}
			default:
				continue
			}
		}
		stmts = append(stmts, span{start, i})
		start = i + 1
	}
	for i := len(stmts) - 1; i >= 0; i-- {
		s := stmts[i]
		text := code[s.start:s.end]
		trimmed := strings.TrimLeft(text, " \t")
		lead := text[:len(text)-len(trimmed)]
		if out, ok := importBindings(strings.TrimSpace(trimmed)); ok {
			code = code[:s.start] + lead + out + code[s.end:]
		}
	}
	return code
}

func importBindings(stmt string) (string, bool) {
	var out []string
	if m := fromStmt.FindStringSubmatch(stmt); m != nil {
		names := strings.Trim(strings.TrimSpace(m[2]), "()")
		for _, item := range strings.Split(names, ",") {
			im := importItem.FindStringSubmatch(strings.TrimSpace(item))
			if im == nil {
				if strings.TrimSpace(item) == "*" {
					out = append(out, fmt.Sprintf("%s(%q, %q)", starctx.HelperImport, m[1], "*"))
					continue
				}
				return "", false
			}
			alias := im[2]
			if alias == "" {
				alias = im[1]
			}
			out = append(out, fmt.Sprintf("%s = %s(%q, %q)", alias, starctx.HelperImport, m[1], im[1]))
		}
		return strings.Join(out, "; "), len(out) > 0
	}
	if m := importStmt.FindStringSubmatch(stmt); m != nil {
		for _, item := range strings.Split(m[1], ",") {
			im := importItem.FindStringSubmatch(strings.TrimSpace(item))
			if im == nil {
				return "", false
			}
			alias := im[2]
			if alias == "" {
				alias, _, _ = strings.Cut(im[1], ".")
			}
			out = append(out, fmt.Sprintf("%s = %s(%q)", alias, starctx.HelperImport, im[1]))
		}
		return strings.Join(out, "; "), len(out) > 0
	}
	return "", false
}

var identity = regexp.MustCompile(`\bis(\s+not)?\b`)

// translateIdentity maps "is" and "is not" onto equality. Every value a
// snippet can compare by identity (None, True, False) compares equal
// exactly when it is identical.
func translateIdentity(code string) string {
	_, mask := scan(code)
	matches := identity.FindAllStringSubmatchIndex(mask, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		op := "=="
		if m[2] >= 0 {
			op = "!="
		}
		code = code[:m[0]] + op + code[m[1]:]
	}
	return code
}

var operandKeywords = map[string]bool{
	"lambda": true, "and": true, "or": true, "not": true, "in": true,
	"if": true, "else": true, "return": true, "yield": true,
}

// translatePow rewrites binary "a ** b" as _pow(a, b), rightmost first so
// that right associativity is preserved. Keyword unpacking is left alone.
func translatePow(code string) string {
	pos := len(code)
	for {
		lits, mask := scan(code)
		at := strings.LastIndex(mask[:pos], "**")
		if at < 0 {
			return code
		}
		pos = at
		if at > 0 && mask[at-1] == '*' {
			continue
		}
		left := operandStart(mask, lits, at-1)
		right := operandEnd(mask, lits, at+2)
		if left < 0 || right < 0 {
			continue
		}
		x := strings.TrimSpace(code[left:at])
		y := strings.TrimSpace(code[at+2 : right])
		code = code[:left] + starctx.HelperPow + "(" + x + ", " + y + ")" + code[right:]
		pos = left
	}
}

func matchOpen(mask string, close int) int {
	depth := 0
	for i := close; i >= 0; i-- {
		switch mask[i] {
		case ')', ']', '}':
			depth++
		case '(', '[', '{':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func matchClose(mask string, open int) int {
	depth := 0
	for i := open; i < len(mask); i++ {
		switch mask[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// operandStart returns the offset of the primary expression ending at or
// before end, or -1 when there is none.
func operandStart(mask string, lits []literal, end int) int {
	i := end
	for i >= 0 && (mask[i] == ' ' || mask[i] == '\t') {
		i--
	}
	if i < 0 {
		return -1
	}
	for {
		c := mask[i]
		switch {
		case c == ')' || c == ']' || c == '}':
			open := matchOpen(mask, i)
			if open < 0 {
				return -1
			}
			if c == '}' || open == 0 {
				return open
			}
			if p := mask[open-1]; isIdentByte(p) || p == ')' || p == ']' {
				i = open - 1
				continue
			}
			return open
		case c == '\'' || c == '"':
			for _, lit := range lits {
				if lit.end == i+1 {
					return lit.start
				}
			}
			return -1
		case isIdentByte(c):
			k := i
			for k >= 0 && (isIdentByte(mask[k]) || mask[k] == '.') {
				k--
			}
			word := mask[k+1 : i+1]
			if operandKeywords[word] {
				return -1
			}
			if k >= 0 && (mask[k] == ')' || mask[k] == ']') && mask[k+1] == '.' {
				i = k
				continue
			}
			return k + 1
		default:
			return -1
		}
	}
}

// operandEnd returns the offset just past the unary expression starting at
// or after start, or -1 when there is none.
func operandEnd(mask string, lits []literal, start int) int {
	i := start
	skip := func() {
		for i < len(mask) && (mask[i] == ' ' || mask[i] == '\t') {
			i++
		}
	}
	skip()
	if i < len(mask) && (mask[i] == '-' || mask[i] == '+' || mask[i] == '~') {
		i++
		skip()
	}
	if i >= len(mask) {
		return -1
	}
	switch c := mask[i]; {
	case c == '(' || c == '[' || c == '{':
		close := matchClose(mask, i)
		if close < 0 {
			return -1
		}
		i = close + 1
	case c == '\'' || c == '"':
		for _, lit := range lits {
			if lit.start == i || lit.body-len(lit.quote) == i {
				return lit.end
			}
		}
		return -1
	case isIdentByte(c):
		for i < len(mask) && (isIdentByte(mask[i]) || mask[i] == '.') {
			i++
		}
	default:
		return -1
	}
	for i < len(mask) {
		switch mask[i] {
		case '(', '[':
			close := matchClose(mask, i)
			if close < 0 {
				return -1
			}
			i = close + 1
		case '.':
			i++
			for i < len(mask) && isIdentByte(mask[i]) {
				i++
			}
		default:
			return i
		}
	}
	return i
}
