package agent

import (
	"context"
	"strings"

	"github.com/leapstack-labs/leapinsight/internal/sandbox"
)

// Tool names accepted on the wire.
const (
	ToolExecuteCode      = "execute_code"
	ToolPythonCalculator = "python_calculator"
	ToolPython           = "python"
	ToolFetchData        = "fetch_data"
)

// Tool is a capability the model may request mid-reasoning.
type Tool interface {
	// Name is the canonical tool name shown in the prompt.
	Name() string
	// Aliases are further names accepted for the tool.
	Aliases() []string
	Description() string
	// Run never fails; errors are reported inside the Observation.
	Run(ctx context.Context, input string) sandbox.Observation
}

// CodeTool runs analysis code through the sandbox.
type CodeTool struct {
	evaluator *sandbox.Evaluator
}

// NewCodeTool wraps an evaluator as the execute_code tool.
func NewCodeTool(ev *sandbox.Evaluator) *CodeTool {
	return &CodeTool{evaluator: ev}
}

// Name implements Tool.
func (t *CodeTool) Name() string { return ToolExecuteCode }

// Aliases implements Tool.
func (t *CodeTool) Aliases() []string { return []string{ToolPythonCalculator, ToolPython} }

// Description implements Tool.
func (t *CodeTool) Description() string {
	return "Use this tool for calculations, statistical analysis and data analysis over the loan datasets. " +
		"Input should be valid Python code that returns a result. You can use pandas, numpy, math, statistics, json and datetime. " +
		"Always import required libraries and load the data first."
}

// Run implements Tool.
func (t *CodeTool) Run(ctx context.Context, input string) sandbox.Observation {
	return t.evaluator.Execute(ctx, input)
}

// toolset resolves requested tool names, aliases included.
type toolset struct {
	ordered []Tool
	byName  map[string]Tool
}

func newToolset(tools []Tool) toolset {
	ts := toolset{byName: make(map[string]Tool)}
	for _, t := range tools {
		if t == nil {
			continue
		}
		ts.ordered = append(ts.ordered, t)
		ts.byName[t.Name()] = t
		for _, a := range t.Aliases() {
			ts.byName[a] = t
		}
	}
	return ts
}

// lookup finds a tool by name, ignoring case, backticks and brackets models
// sometimes wrap around it.
func (ts toolset) lookup(name string) (Tool, bool) {
	name = strings.ToLower(strings.Trim(strings.TrimSpace(name), "`'\"[]"))
	t, ok := ts.byName[name]
	return t, ok
}

func (ts toolset) names() []string {
	names := make([]string, len(ts.ordered))
	for i, t := range ts.ordered {
		names[i] = t.Name()
	}
	return names
}
