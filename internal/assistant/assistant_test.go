package assistant

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapinsight/internal/agent"
	"github.com/leapstack-labs/leapinsight/internal/answer"
	"github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/conversation"
	"github.com/leapstack-labs/leapinsight/internal/dataset"
	"github.com/leapstack-labs/leapinsight/internal/fault"
	"github.com/leapstack-labs/leapinsight/internal/llm"
	"github.com/leapstack-labs/leapinsight/internal/sandbox"
	"github.com/leapstack-labs/leapinsight/internal/testutil"
)

const (
	loadData   = "import pandas as pd; df = pd.read_csv('processed_data.csv'); "
	countStep  = " I should count active loans\nAction: execute_code\nAction Input: " + loadData + "active = len(df[df['Status'] == 'Active']); active"
	answerStep = " I now know the final answer\nFinal Answer: <div class=\"response-container\"><p>We have {active} active loans.</p></div>"
)

func newAssistant(t *testing.T, scripts ...llm.Script) (*Assistant, *llm.Scripted) {
	t.Helper()
	dir := testutil.WriteLoanFixtures(t)
	catalog, err := dataset.NewCatalog(dir, config.DefaultDatasets())
	require.NoError(t, err)
	logger := testutil.NewTestLogger(t)

	ev := sandbox.New(dataset.NewAccessor(catalog, dataset.NewCSVLoader()), sandbox.WithLogger(logger))
	completer := llm.NewScripted(scripts...)
	controller := agent.New(completer, []agent.Tool{agent.NewCodeTool(ev)},
		agent.WithDatasets(catalog.Describe()),
		agent.WithMaxIterations(3, config.EarlyStopForce),
		agent.WithLogger(logger),
	)
	return New(controller, WithLogger(logger)), completer
}

func TestAnswer(t *testing.T) {
	tests := []struct {
		name      string
		steps     []string
		repeat    bool
		query     string
		contains  []string
		excludes  []string
		wantFault fault.Kind
		wantCalls int
	}{
		{
			name:      "tool then answer with placeholder",
			steps:     []string{countStep, answerStep},
			query:     "How many active loans do we have?",
			contains:  []string{"We have 9 active loans."},
			excludes:  []string{"{active}"},
			wantCalls: 2,
		},
		{
			name:      "empty question",
			query:     "   ",
			contains:  []string{"Invalid Question"},
			wantFault: fault.KindInvalidQuery,
		},
		{
			name:      "question too long",
			query:     strings.Repeat("a", config.DefaultMaxQueryLength+1),
			contains:  []string{"Question Too Complex"},
			wantFault: fault.KindQueryTooLong,
		},
		{
			name:      "loop exhausted hides transcript",
			steps:     []string{countStep},
			repeat:    true,
			query:     "How many active loans?",
			contains:  []string{"Incomplete Response"},
			excludes:  []string{"Action Input", "read_csv"},
			wantFault: fault.KindLoopExhausted,
			wantCalls: 3,
		},
		{
			name:      "markup salvaged from unparsable output",
			steps:     []string{"Here you go: <div class=\"response-container\"><p>9 active</p></div>"},
			repeat:    true,
			query:     "How many active loans?",
			contains:  []string{"9 active"},
			wantCalls: 2,
		},
		{
			name:      "unparsable output without markup",
			steps:     []string{"I am not sure what to do."},
			repeat:    true,
			query:     "How many active loans?",
			contains:  []string{"Processing Error"},
			wantFault: fault.KindParse,
			wantCalls: 2,
		},
		{
			name:      "model failure",
			steps:     []string{countStep},
			query:     "How many active loans?",
			contains:  []string{"Processing Error"},
			wantFault: fault.KindCompute,
			wantCalls: 2,
		},
		{
			name:      "unresolvable placeholder is not fabricated",
			steps:     []string{countStep, " Done\nFinal Answer: <div class=\"response-container\"><p>{missing} loans for {manager}</p></div>"},
			query:     "How many active loans?",
			contains:  []string{"Processing Error"},
			excludes:  []string{"{missing}", "{manager}"},
			wantFault: fault.KindParse,
			wantCalls: 2,
		},
		{
			name:      "single placeholder takes the scalar result",
			steps:     []string{countStep, " Done\nFinal Answer: <div class=\"response-container\"><p>{count} loans</p></div>"},
			query:     "How many active loans?",
			contains:  []string{"9 loans"},
			excludes:  []string{"{count}"},
			wantCalls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, completer := newAssistant(t, llm.Script{Steps: tt.steps, Repeat: tt.repeat})

			reply := a.Respond(context.Background(), tt.query, nil)

			for _, s := range tt.contains {
				assert.Contains(t, reply.HTML, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, reply.HTML, s)
			}
			assert.Equal(t, tt.wantFault, reply.Fault)
			assert.Equal(t, tt.wantCalls, completer.Calls())
			assert.True(t, strings.HasPrefix(reply.HTML, `<div class="`+answer.ContainerClass+`"`), reply.HTML)
		})
	}
}

func TestAnswer_ReturnsFragment(t *testing.T) {
	a, _ := newAssistant(t, llm.Script{Steps: []string{countStep, answerStep}})

	html := a.Answer(context.Background(), "How many active loans?", nil)

	assert.Contains(t, html, "We have 9 active loans.")
}

func TestTurns(t *testing.T) {
	turns := Turns([]conversation.Message{
		{Role: conversation.RoleUser, Content: "How many loans?"},
		{Role: conversation.RoleAssistant, Content: `<div class="response-container"><p>There are <strong>12</strong> loans.</p></div>`},
	})

	require.Len(t, turns, 2)
	assert.Equal(t, "User", turns[0].Role)
	assert.Equal(t, "How many loans?", turns[0].Content)
	assert.Equal(t, "Assistant", turns[1].Role)
	assert.Equal(t, "There are **12** loans.", turns[1].Content)
	assert.Nil(t, Turns(nil))
}
