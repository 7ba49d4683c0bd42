package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/dataset"
	"github.com/leapstack-labs/leapinsight/internal/fault"
	"github.com/leapstack-labs/leapinsight/internal/llm"
	"github.com/leapstack-labs/leapinsight/internal/prompt"
	"github.com/leapstack-labs/leapinsight/internal/sandbox"
	"github.com/leapstack-labs/leapinsight/internal/testutil"
)

type fakeTool struct {
	name    string
	aliases []string

	mu     sync.Mutex
	inputs []string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Aliases() []string   { return f.aliases }
func (f *fakeTool) Description() string { return "test tool" }

func (f *fakeTool) Run(_ context.Context, input string) sandbox.Observation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	return sandbox.Observation{Text: fmt.Sprintf("result %d", len(f.inputs)), Kind: sandbox.KindScalar}
}

func (f *fakeTool) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func newCodeFake() *fakeTool {
	return &fakeTool{name: ToolExecuteCode, aliases: []string{ToolPythonCalculator, ToolPython}}
}

// sequence replays completions in order and repeats the last one.
type sequence struct {
	mu      sync.Mutex
	steps   []string
	prompts []string
}

func (s *sequence) Complete(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, req.Prompt)
	i := len(s.prompts) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i], nil
}

func (s *sequence) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func newController(t *testing.T, c llm.Completer, tool Tool, opts ...Option) *Controller {
	t.Helper()
	base := []Option{WithLogger(testutil.NewTestLogger(t)), WithMaxIterations(3, config.EarlyStopForce)}
	return New(c, []Tool{tool}, append(base, opts...)...)
}

const (
	toolStep  = " I need to count rows\nAction: execute_code\nAction Input: len(df)"
	finalStep = " I now know the final answer\nFinal Answer: <div class=\"response-container\"><p>12</p></div>"
)

func TestRun_DirectAnswer(t *testing.T) {
	seq := &sequence{steps: []string{finalStep}}
	tool := newCodeFake()
	res := newController(t, seq, tool).Run(context.Background(), "How many loans?", nil)

	assert.Equal(t, StateFinalAnswerReceived, res.State)
	assert.True(t, res.Answered())
	assert.Empty(t, res.Reason)
	assert.Equal(t, 1, res.Calls)
	assert.Equal(t, 0, res.Cycles)
	assert.Nil(t, res.Observation)
	assert.Equal(t, finalStep, res.Final)
	assert.Equal(t, 0, tool.runs())
	assert.Contains(t, seq.prompts[0], "Question: How many loans?\nThought:")
}

func TestRun_ToolThenAnswer(t *testing.T) {
	seq := &sequence{steps: []string{toolStep, finalStep}}
	tool := newCodeFake()
	res := newController(t, seq, tool).Run(context.Background(), "How many loans?", nil)

	require.Equal(t, StateFinalAnswerReceived, res.State)
	assert.Equal(t, 2, res.Calls)
	assert.Equal(t, 1, res.Cycles)
	assert.Equal(t, []string{"len(df)"}, tool.inputs)
	require.Len(t, res.Turns, 1)
	assert.Equal(t, "I need to count rows", res.Turns[0].Thought)
	assert.Equal(t, "result 1", res.Turns[0].Observation)
	require.NotNil(t, res.Observation)
	assert.Equal(t, "result 1", res.Observation.Text)

	assert.True(t, strings.HasSuffix(seq.prompts[1], "Action Input: len(df)\nObservation: result 1\nThought:"))
	assert.Contains(t, res.Transcript, "Observation: result 1\nThought:"+finalStep)
}

func TestRun_CeilingForceAborts(t *testing.T) {
	seq := &sequence{steps: []string{
		"Action: execute_code\nAction Input: a",
		"Action: execute_code\nAction Input: b",
		"Action: execute_code\nAction Input: c",
		"Action: execute_code\nAction Input: d",
	}}
	tool := newCodeFake()
	res := newController(t, seq, tool).Run(context.Background(), "q", nil)

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, fault.KindLoopExhausted, res.Reason)
	assert.Equal(t, 3, res.Cycles)
	assert.Equal(t, 3, seq.calls())
	assert.Equal(t, 3, tool.runs())
}

func TestRun_CeilingGenerate(t *testing.T) {
	tests := []struct {
		name  string
		last  string
		state State
	}{
		{name: "extra call answers", last: finalStep, state: StateFinalAnswerReceived},
		{name: "extra call keeps requesting tools", last: "Action: execute_code\nAction Input: z", state: StateAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := &sequence{steps: []string{
				"Action: execute_code\nAction Input: a",
				"Action: execute_code\nAction Input: b",
				"Action: execute_code\nAction Input: c",
				tt.last,
			}}
			tool := newCodeFake()
			res := newController(t, seq, tool, WithMaxIterations(3, config.EarlyStopGenerate)).Run(context.Background(), "q", nil)

			assert.Equal(t, tt.state, res.State)
			assert.Equal(t, 4, seq.calls())
			assert.Equal(t, 3, tool.runs())
			assert.Contains(t, seq.prompts[3], "I now need to return a final answer")
			if tt.state == StateAborted {
				assert.Equal(t, fault.KindLoopExhausted, res.Reason)
			}
		})
	}
}

func TestRun_ParseRecovery(t *testing.T) {
	seq := &sequence{steps: []string{"I am not sure what to do.", finalStep}}
	res := newController(t, seq, newCodeFake()).Run(context.Background(), "q", nil)

	require.Equal(t, StateFinalAnswerReceived, res.State)
	require.Len(t, res.Turns, 1)
	assert.True(t, res.Turns[0].Corrective)
	assert.Contains(t, seq.prompts[1], "Observation: Invalid format.")
}

func TestRun_SecondParseFailureAborts(t *testing.T) {
	partial := "Here you go: <div><p>12 loans</p></div>"
	seq := &sequence{steps: []string{"", partial}}
	res := newController(t, seq, newCodeFake()).Run(context.Background(), "q", nil)

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, fault.KindParse, res.Reason)
	assert.Equal(t, partial, res.Final)
	assert.Equal(t, 2, res.Calls)
}

func TestRun_UnknownTool(t *testing.T) {
	seq := &sequence{steps: []string{"Action: fetch_data\nAction Input: SELECT 1", finalStep}}
	tool := newCodeFake()
	res := newController(t, seq, tool).Run(context.Background(), "q", nil)

	require.Equal(t, StateFinalAnswerReceived, res.State)
	assert.Equal(t, 0, tool.runs())
	assert.Contains(t, seq.prompts[1], "fetch_data is not a valid tool, try one of [execute_code].")
}

func TestRun_AliasAccepted(t *testing.T) {
	seq := &sequence{steps: []string{"Action: python_calculator\nAction Input: 1 + 1", finalStep}}
	tool := newCodeFake()
	res := newController(t, seq, tool).Run(context.Background(), "q", nil)

	require.Equal(t, StateFinalAnswerReceived, res.State)
	assert.Equal(t, []string{"1 + 1"}, tool.inputs)
	assert.Equal(t, ToolExecuteCode, res.Turns[0].Tool)
}

func TestRun_RepeatedInputReusesObservation(t *testing.T) {
	seq := &sequence{steps: []string{toolStep, toolStep, finalStep}}
	tool := newCodeFake()
	res := newController(t, seq, tool).Run(context.Background(), "q", nil)

	require.Equal(t, StateFinalAnswerReceived, res.State)
	assert.Equal(t, 1, tool.runs())
	assert.Equal(t, 2, res.Cycles)
	require.Len(t, res.Turns, 2)
	assert.True(t, res.Turns[1].Repeated)
	assert.Equal(t, "result 1\n"+repeatReminder, res.Turns[1].Observation)
}

func TestRun_InventedObservationIgnored(t *testing.T) {
	seq := &sequence{steps: []string{
		"Action: execute_code\nAction Input: len(df)\nObservation: 99\nThought: done\nFinal Answer: <p>99</p>",
		finalStep,
	}}
	tool := newCodeFake()
	res := newController(t, seq, tool).Run(context.Background(), "q", nil)

	require.Equal(t, StateFinalAnswerReceived, res.State)
	assert.Equal(t, 1, tool.runs())
	assert.NotContains(t, res.Transcript, "99")
	assert.Equal(t, finalStep, res.Final)
}

func TestRun_Timeout(t *testing.T) {
	blocking := llm.CompleterFunc(func(ctx context.Context, _ llm.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	start := time.Now()
	res := newController(t, blocking, newCodeFake(), WithTimeout(50*time.Millisecond)).Run(context.Background(), "q", nil)

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, fault.KindTimeout, res.Reason)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	seq := &sequence{steps: []string{finalStep}}
	res := newController(t, seq, newCodeFake()).Run(ctx, "q", nil)

	assert.Equal(t, fault.KindTimeout, res.Reason)
	assert.Equal(t, 0, seq.calls())
}

func TestRun_ModelError(t *testing.T) {
	failing := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		return "", errors.New("connection refused")
	})
	res := newController(t, failing, newCodeFake()).Run(context.Background(), "q", nil)

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, fault.KindCompute, res.Reason)
}

func TestRun_RequestCarriesStopAndModel(t *testing.T) {
	var got llm.Request
	c := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		got = req
		return finalStep, nil
	})
	newController(t, c, newCodeFake(), WithModel("mistral", 0.1)).Run(context.Background(), "q", nil)

	assert.Equal(t, []string{StopSequence}, got.Stop)
	assert.Equal(t, "mistral", got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 1e-9)
}

func TestRun_HistoryInPrompt(t *testing.T) {
	seq := &sequence{steps: []string{finalStep}}
	history := []prompt.Turn{{Role: "Human", Content: "total arrears?"}, {Role: "Assistant", Content: "<p>5,800</p>"}}
	newController(t, seq, newCodeFake()).Run(context.Background(), "and by manager?", history)

	assert.Contains(t, seq.prompts[0], "Human: total arrears?\nAssistant: <p>5,800</p>")
}

// Every sequence of model outputs ends within max_iterations + 1 calls.
func TestRun_AlwaysTerminates(t *testing.T) {
	outputs := []string{
		toolStep,
		finalStep,
		"",
		"garbage",
		"Action: execute_code",
		"Action: nope\nAction Input: x",
		"Action: execute_code\nAction Input: other",
		"Observation: 1",
		"Final Answer:",
	}
	for _, mode := range []string{config.EarlyStopForce, config.EarlyStopGenerate} {
		for i := range outputs {
			for j := range outputs {
				seq := &sequence{steps: []string{outputs[i], outputs[j], outputs[(i+j)%len(outputs)]}}
				res := newController(t, seq, newCodeFake(), WithMaxIterations(4, mode)).Run(context.Background(), "q", nil)

				assert.True(t, res.State.Terminal())
				assert.LessOrEqual(t, seq.calls(), 5, "mode %s seq %d/%d", mode, i, j)
				assert.Equal(t, seq.calls(), res.Calls)
			}
		}
	}
}

func TestRun_WithSandbox(t *testing.T) {
	dir := testutil.WriteLoanFixtures(t)
	catalog, err := dataset.NewCatalog(dir, config.DefaultDatasets())
	require.NoError(t, err)
	ev := sandbox.New(dataset.NewAccessor(catalog, dataset.NewCSVLoader()))

	script := llm.NewScripted(llm.Script{Match: "active loans", Steps: []string{
		" I should count active loans\nAction: execute_code\nAction Input: import pandas as pd; df = pd.read_csv('processed_data.csv'); len(df[df['Status'] == 'Active'])",
		" I now know the final answer\nFinal Answer: <div class=\"response-container\"><p>We have 9 active loans.</p></div>",
	}})
	c := New(script, []Tool{NewCodeTool(ev)},
		WithDatasets(catalog.Describe()),
		WithLogger(testutil.NewTestLogger(t)),
	)
	res := c.Run(context.Background(), "How many active loans do we have?", nil)

	require.Equal(t, StateFinalAnswerReceived, res.State)
	require.NotNil(t, res.Observation)
	assert.Equal(t, "9", res.Observation.Text)
	assert.Equal(t, 2, script.Calls())
	assert.Contains(t, script.Requests()[0].Prompt, "Dataset processed_data")
}
