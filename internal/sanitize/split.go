package sanitize

import "strings"

// line is one top-level source line split into ;-separated statements.
type line struct {
	indent   string
	segments []string
}

// splitLines breaks code into logical lines. Newlines inside brackets are
// folded into spaces, comments are dropped, and ; outside string literals
// separates statements. Lines left without any statement are discarded.
func splitLines(code string) []*line {
	var (
		lines     []*line
		cur       = &line{}
		seg       strings.Builder
		quote     byte
		triple    bool
		depth     int
		lineStart = true
	)

	endSegment := func() {
		if s := strings.TrimSpace(seg.String()); s != "" {
			cur.segments = append(cur.segments, s)
		}
		seg.Reset()
	}
	endLine := func() {
		endSegment()
		if len(cur.segments) > 0 {
			lines = append(lines, cur)
		}
		cur = &line{}
		lineStart = true
	}

	for i := 0; i < len(code); i++ {
		c := code[i]

		if quote != 0 {
			seg.WriteByte(c)
			switch {
			case c == '\\' && i+1 < len(code):
				i++
				seg.WriteByte(code[i])
			case c == quote && !triple:
				quote = 0
			case c == quote && strings.HasPrefix(code[i:], strings.Repeat(string(quote), 3)):
				seg.WriteString(code[i+1 : i+3])
				i += 2
				quote, triple = 0, false
			case c == '\n' && !triple:
				// unterminated literal; let the interpreter report it
				quote = 0
			}
			continue
		}

		if lineStart && depth == 0 {
			if c == ' ' || c == '\t' {
				cur.indent += string(c)
				continue
			}
			if c == '\n' || c == '\r' {
				cur.indent = ""
				continue
			}
			lineStart = false
		}

		switch c {
		case '#':
			for i+1 < len(code) && code[i+1] != '\n' {
				i++
			}
		case '\'', '"':
			quote = c
			triple = strings.HasPrefix(code[i:], strings.Repeat(string(c), 3))
			if triple {
				seg.WriteString(code[i : i+3])
				i += 2
			} else {
				seg.WriteByte(c)
			}
		case '(', '[', '{':
			depth++
			seg.WriteByte(c)
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
			seg.WriteByte(c)
		case '\\':
			if i+1 < len(code) && (code[i+1] == '\n' || code[i+1] == '\r') {
				seg.WriteByte(' ')
				i++
			} else {
				seg.WriteByte(c)
			}
		case '\r':
		case '\n':
			if depth > 0 {
				seg.WriteByte(' ')
				for i+1 < len(code) && (code[i+1] == ' ' || code[i+1] == '\t') {
					i++
				}
			} else {
				endLine()
			}
		case ';':
			if depth > 0 {
				seg.WriteByte(c)
			} else {
				endSegment()
			}
		default:
			seg.WriteByte(c)
		}
	}
	endLine()

	if len(lines) > 0 && lines[0].indent != "" {
		base := lines[0].indent
		for _, ln := range lines {
			ln.indent = strings.TrimPrefix(ln.indent, base)
		}
	}
	return lines
}
