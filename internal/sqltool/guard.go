package sqltool

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ErrRejected is returned for statements the guard refuses.
var ErrRejected = errors.New("query rejected")

// blockedKeywords may not appear anywhere outside literals.
var blockedKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true, "CREATE": true,
	"ALTER": true, "ATTACH": true, "DETACH": true, "COPY": true, "INSTALL": true,
	"LOAD": true, "PRAGMA": true, "EXPORT": true, "IMPORT": true, "SET": true,
	"CALL": true, "TRUNCATE": true, "GRANT": true, "VACUUM": true,
	"CHECKPOINT": true,
}

// blockedFunctions read outside the loaded tables.
var blockedFunctions = []string{
	"read_csv", "read_csv_auto", "read_parquet", "read_json", "read_json_auto",
	"read_text", "read_blob", "glob", "parquet_scan", "sqlite_scan", "getenv",
}

var fencePattern = regexp.MustCompile("(?s)^```[A-Za-z]*\\s*(.*?)\\s*```$")

// rejection builds an ErrRejected carrying a hint safe to show the model.
func rejection(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}

// Clean strips the wrapping models put around SQL and admits a single
// read-only statement. Backtick-quoted identifiers become double-quoted.
func Clean(input string, maxLen int) (string, error) {
	q := strings.TrimSpace(input)
	if m := fencePattern.FindStringSubmatch(q); m != nil {
		q = m[1]
	}
	q = strings.TrimSpace(q)
	for len(q) >= 2 && (q[0] == '"' && q[len(q)-1] == '"' || q[0] == '\'' && q[len(q)-1] == '\'') {
		q = strings.TrimSpace(q[1 : len(q)-1])
	}
	q = strings.TrimSpace(strings.TrimRight(q, "; \t\r\n"))
	if q == "" {
		return "", rejection("the query must be a non-empty SELECT statement")
	}
	if maxLen > 0 && len(q) > maxLen {
		return "", rejection("the query is longer than %d characters; simplify it", maxLen)
	}

	words, out, err := scan(q)
	if err != nil {
		return "", err
	}
	if len(words) == 0 || (words[0] != "SELECT" && words[0] != "WITH") {
		return "", rejection("only SELECT or WITH queries are allowed")
	}
	for _, w := range words {
		if blockedKeywords[w] {
			return "", rejection("%s statements are not allowed", w)
		}
	}
	lower := strings.ToLower(out)
	for _, fn := range blockedFunctions {
		if containsCall(lower, fn) {
			return "", rejection("%s is not available; query the loaded tables", fn)
		}
	}
	return out, nil
}

// scan walks q outside string literals and quoted identifiers. It returns
// the upper-cased bare words, the query with backtick identifiers rewritten,
// and an error for comments, extra statements or unterminated quotes.
func scan(q string) ([]string, string, error) {
	var (
		words []string
		out   strings.Builder
		word  strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToUpper(word.String()))
			word.Reset()
		}
	}
	runes := []rune(q)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' || r == '"' || r == '`':
			flush()
			end := closing(runes, i+1, r)
			if end < 0 {
				return nil, "", rejection("unterminated quote")
			}
			body := string(runes[i+1 : end])
			if r == '`' {
				out.WriteString(`"` + strings.ReplaceAll(body, `"`, `""`) + `"`)
			} else {
				out.WriteString(string(runes[i : end+1]))
			}
			i = end
			continue
		case r == ';':
			return nil, "", rejection("only one statement is allowed")
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-',
			r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			return nil, "", rejection("comments are not allowed")
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			word.WriteRune(r)
		default:
			flush()
		}
		out.WriteRune(r)
	}
	flush()
	return words, out.String(), nil
}

// closing finds the quote ending a literal opened before start. A doubled
// quote is an escaped one.
func closing(runes []rune, start int, quote rune) int {
	for j := start; j < len(runes); j++ {
		if runes[j] != quote {
			continue
		}
		if j+1 < len(runes) && runes[j+1] == quote {
			j++
			continue
		}
		return j
	}
	return -1
}

func containsCall(lower, fn string) bool {
	for idx := 0; ; {
		k := strings.Index(lower[idx:], fn)
		if k < 0 {
			return false
		}
		pos := idx + k
		before := pos == 0 || !isIdent(rune(lower[pos-1]))
		rest := strings.TrimLeft(lower[pos+len(fn):], " \t\n")
		if before && strings.HasPrefix(rest, "(") {
			return true
		}
		idx = pos + len(fn)
	}
}

func isIdent(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
