package llm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stop = "\nObservation:"

func TestScriptedComplete(t *testing.T) {
	s := NewScripted(
		Script{Match: "active loans", Steps: []string{
			"Action: execute_code\nAction Input: len(df)\nObservation: 9",
			"Final Answer: <p>9</p>",
		}},
		Script{Steps: []string{"Final Answer: <p>hello</p>"}},
	)

	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{
			name:   "first step is cut at the stop sequence",
			prompt: "Question: How many ACTIVE LOANS?\n",
			want:   "Action: execute_code\nAction Input: len(df)",
		},
		{
			name:   "step follows observations",
			prompt: "Question: How many active loans?\nAction: execute_code\nObservation: 9\n",
			want:   "Final Answer: <p>9</p>",
		},
		{
			name:   "observations before the last question are ignored",
			prompt: "Question: old\nObservation: 1\nQuestion: how many active loans\n",
			want:   "Action: execute_code\nAction Input: len(df)",
		},
		{
			name:   "empty match catches the rest",
			prompt: "Question: hi",
			want:   "Final Answer: <p>hello</p>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Complete(context.Background(), Request{Prompt: tt.prompt, Stop: []string{stop}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, len(tests), s.Calls())
}

func TestScriptedComplete_Exhaustion(t *testing.T) {
	prompt := "Question: q\nObservation: a\nObservation: b\n"

	_, err := NewScripted(Script{Steps: []string{"one"}}).Complete(context.Background(), Request{Prompt: prompt})
	assert.ErrorIs(t, err, ErrScriptExhausted)

	got, err := NewScripted(Script{Steps: []string{"one", "last"}, Repeat: true}).Complete(context.Background(), Request{Prompt: prompt})
	require.NoError(t, err)
	assert.Equal(t, "last", got)

	_, err = NewScripted(Script{Match: "other", Steps: []string{"x"}}).Complete(context.Background(), Request{Prompt: "Question: q"})
	assert.ErrorIs(t, err, ErrNoScript)
}

func TestScriptedComplete_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScripted(Script{Steps: []string{"x"}}).Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "replies.yaml")
	content := `
scripts:
  - match: arrears
    steps:
      - |
        Thought: sum arrears
        Action: execute_code
        Action Input: df['Arrears'].sum()
      - "Final Answer: <p>{total}</p>"
  - repeat: true
    steps:
      - "Final Answer: <p>Ask me about loans.</p>"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := LoadScript(path)
	require.NoError(t, err)
	require.Len(t, s.scripts, 2)
	assert.Equal(t, "arrears", s.scripts[0].Match)
	assert.True(t, s.scripts[1].Repeat)

	got, err := s.Complete(context.Background(), Request{Prompt: "Question: total arrears?"})
	require.NoError(t, err)
	assert.Contains(t, got, "Action Input: df['Arrears'].sum()")
}

func TestLoadScript_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "empty", content: "scripts: []", wantErr: "declares no scripts"},
		{name: "no steps", content: "scripts:\n  - match: x\n", wantErr: "has no steps"},
		{name: "bad yaml", content: "scripts: [", wantErr: "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := LoadScript(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
