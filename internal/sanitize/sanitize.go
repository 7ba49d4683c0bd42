// Package sanitize repairs model-written analysis code before it is executed.
//
// Cleaning is purely textual. It strips markdown fencing and echoed log noise,
// joins the code into one logical statement sequence, applies the declarative
// repair rules and requires the code to open with the pandas import that
// gives it access to the datasets.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapinsight/internal/fault"
)

// RequiredImport is the statement every snippet must start with.
const RequiredImport = "import pandas as pd"

// Separator joins statements of a flat snippet.
const Separator = "; "

// Snippet is one piece of model-written code.
type Snippet struct {
	Raw     string
	Cleaned string
	// SingleExpression is true when the cleaned code is one expression
	// statement rather than a statement sequence.
	SingleExpression bool
	// Block is true when the code has indented blocks and keeps its lines.
	Block bool
	// Applied lists the repair rules that changed the code.
	Applied []string
}

// Sanitizer cleans code with a fixed rule table.
type Sanitizer struct {
	rules []*Rule
}

// New creates a sanitizer. With no rules the built-in table is used.
func New(rules ...*Rule) *Sanitizer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Sanitizer{rules: rules}
}

// Rules returns the rule table in application order.
func (s *Sanitizer) Rules() []*Rule { return append([]*Rule(nil), s.rules...) }

// Clean sanitizes raw with the built-in rules.
func Clean(raw string) (Snippet, error) {
	return New().Clean(raw)
}

var (
	fencedBlock  = regexp.MustCompile("(?s)```(?:[\\w+-]*[ \\t]*\\n)?(.*?)```")
	openFence    = regexp.MustCompile("(?s)```(?:[\\w+-]*[ \\t]*\\n)?(.*)$")
	bracketStamp = regexp.MustCompile(`\[\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}[^\]\n]*\]`)
	logStamp     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2},\d{3}(?:\s+-\s+[\w.]+\s+-\s+[A-Z]+\s+-[^\n]*)?`)
)

// Clean sanitizes raw. It fails with a syntax fault when nothing executable
// remains or the code does not load data with the required import.
func (s *Sanitizer) Clean(raw string) (Snippet, error) {
	snip := Snippet{Raw: raw}

	code := stripFences(raw)
	code = stripNoise(code)

	lines := splitLines(code)
	block := false
	for _, ln := range lines {
		last := ln.segments[len(ln.segments)-1]
		if strings.HasSuffix(last, ":") {
			block = true
			break
		}
	}
	snip.Block = block

	applied := make(map[string]bool)
	for _, ln := range lines {
		for i, seg := range ln.segments {
			for _, r := range s.rules {
				if r.Matches(seg) {
					seg = r.Apply(seg)
					applied[r.Name] = true
				}
			}
			ln.segments[i] = seg
		}
	}
	for _, r := range s.rules {
		if applied[r.Name] {
			snip.Applied = append(snip.Applied, r.Name)
		}
	}

	if len(lines) == 0 {
		return snip, fault.New(fault.KindSyntax, "the code is empty")
	}

	if block {
		lines = salvageLines(lines)
		if lines == nil {
			return snip, missingImport()
		}
		out := make([]string, len(lines))
		for i, ln := range lines {
			out[i] = ln.indent + strings.Join(ln.segments, Separator)
		}
		snip.Cleaned = strings.Join(out, "\n")
		return snip, nil
	}

	var stmts []string
	for _, ln := range lines {
		stmts = append(stmts, ln.segments...)
	}
	stmts = salvage(stmts)
	if stmts == nil {
		return snip, missingImport()
	}
	snip.Cleaned = strings.Join(stmts, Separator)
	snip.SingleExpression = len(stmts) == 1 && IsExpression(stmts[0])
	return snip, nil
}

func missingImport() error {
	return fault.New(fault.KindSyntax, "missing dataset-loading statement: the code must start with "+RequiredImport)
}

func stripFences(code string) string {
	if strings.Contains(code, "```") {
		if m := fencedBlock.FindStringSubmatch(code); m != nil {
			code = m[1]
		} else if m := openFence.FindStringSubmatch(code); m != nil {
			code = m[1]
		}
	}
	return strings.ReplaceAll(code, "`", "")
}

func stripNoise(code string) string {
	if i := strings.Index(code, "Observation:"); i >= 0 {
		code = code[:i]
	}
	code = logStamp.ReplaceAllString(code, "")
	code = bracketStamp.ReplaceAllString(code, "")
	return code
}

func isRequiredImport(stmt string) bool {
	return strings.Join(strings.Fields(stmt), " ") == RequiredImport
}

func isImport(stmt string) bool {
	return strings.HasPrefix(stmt, "import ") || (strings.HasPrefix(stmt, "from ") && strings.Contains(stmt, " import "))
}

// salvage moves the code to start at the required import. Imports written
// before it are kept after it; any other earlier statement is dropped.
func salvage(stmts []string) []string {
	at := -1
	for i, st := range stmts {
		if isRequiredImport(st) {
			at = i
			break
		}
	}
	if at < 0 {
		return nil
	}
	out := []string{RequiredImport}
	for _, st := range stmts[:at] {
		if isImport(st) {
			out = append(out, st)
		}
	}
	return append(out, stmts[at+1:]...)
}

func salvageLines(lines []*line) []*line {
	at := -1
	for i, ln := range lines {
		if ln.indent == "" && isRequiredImport(ln.segments[0]) {
			at = i
			break
		}
	}
	if at < 0 {
		return nil
	}
	first := lines[at]
	first.segments[0] = RequiredImport
	out := []*line{first}
	for _, ln := range lines[:at] {
		if ln.indent == "" && isImport(ln.segments[0]) {
			out = append(out, ln)
		}
	}
	return append(out, lines[at+1:]...)
}

var statementKeywords = []string{
	"import", "from", "for", "while", "if", "elif", "else", "def", "class",
	"return", "with", "try", "except", "finally", "del", "pass", "assert",
	"raise", "global", "nonlocal", "break", "continue",
}

// IsExpression reports whether stmt is an expression statement: it does not
// open with a statement keyword and has no assignment outside brackets or
// string literals.
func IsExpression(stmt string) bool {
	stmt = strings.TrimSpace(stmt)
	if stmt == "" {
		return false
	}
	word := stmt
	if i := strings.IndexAny(stmt, " \t(:"); i >= 0 {
		word = stmt[:i]
	}
	for _, kw := range statementKeywords {
		if word == kw {
			return false
		}
	}
	return !hasTopLevelAssign(stmt)
}

func hasTopLevelAssign(stmt string) bool {
	var quote byte
	depth := 0
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case '=':
			if depth > 0 {
				continue
			}
			if i+1 < len(stmt) && stmt[i+1] == '=' {
				i++
				continue
			}
			if i > 0 && strings.IndexByte("=!<>", stmt[i-1]) >= 0 {
				continue
			}
			return true
		}
	}
	return false
}
