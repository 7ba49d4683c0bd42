// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapinsight/internal/cli/output"
	"github.com/leapstack-labs/leapinsight/internal/testutil"
)

// ActiveLoansReply is the scripted answer SetupTestProject gives to questions
// about active loans.
const ActiveLoansReply = "We have 9 active loans."

const projectConfig = `data:
  dir: data
llm:
  provider: scripted
  script: replies.yaml
tools:
  sql: true
conversation:
  archive: history.db
`

const projectReplies = `scripts:
  - match: active loans
    steps:
      - |
        I should count active loans
        Action: execute_code
        Action Input: import pandas as pd; df = pd.read_csv('processed_data.csv'); active = len(df[df['Status'] == 'Active']); active
      - |
        I now know the final answer
        Final Answer: <div class="response-container"><p>We have {active} active loans.</p></div>
  - repeat: true
    steps:
      - "Final Answer: <div class=\"response-container\"><p>I can only count active loans.</p></div>"
`

// SetupTestProject creates a temporary project with the loan fixtures under
// data/, a scripted provider and a conversation archive.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	if err := os.Rename(testutil.WriteLoanFixtures(t), filepath.Join(tmpDir, "data")); err != nil {
		t.Fatalf("failed to move fixtures: %v", err)
	}

	files := map[string]string{
		"leapinsight.yaml": projectConfig,
		"replies.yaml":     projectReplies,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0600); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	return tmpDir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode.
// Output is captured in buffers, which are never terminals.
func NewTestRenderer(mode output.Mode) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRenderer(out, errOut, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode.
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
