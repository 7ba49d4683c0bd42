// Package agent implements the bounded ReAct reasoning loop: the model
// either requests a tool, whose Observation is fed back, or ends with a
// final answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/fault"
	"github.com/leapstack-labs/leapinsight/internal/llm"
	"github.com/leapstack-labs/leapinsight/internal/prompt"
	"github.com/leapstack-labs/leapinsight/internal/sandbox"
)

const (
	formatReminder = "Invalid format. Reply with either\n" +
		"Action: one of [%s]\nAction Input: the code to run\n" +
		"or\nFinal Answer: the HTML answer"
	unknownToolReminder = "%s is not a valid tool, try one of [%s]."
	repeatReminder      = "You already ran this exact input; the result is shown above. " +
		"Use it and give the Final Answer now."
	generatePrompt = "\nThought: I now need to return a final answer based on the previous steps.\n"
)

// Controller drives the reasoning loop.
type Controller struct {
	completer     llm.Completer
	tools         toolset
	prompt        *prompt.Builder
	datasets      string
	brand         config.BrandConfig
	title         string
	maxIterations int
	earlyStopping string
	timeout       time.Duration
	model         string
	temperature   float64
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithPrompt replaces the embedded prompt template.
func WithPrompt(b *prompt.Builder) Option {
	return func(c *Controller) {
		if b != nil {
			c.prompt = b
		}
	}
}

// WithDatasets sets the schema documentation shown to the model.
func WithDatasets(doc string) Option {
	return func(c *Controller) { c.datasets = doc }
}

// WithBrand sets the answer palette and assistant title.
func WithBrand(b config.BrandConfig, title string) Option {
	return func(c *Controller) {
		c.brand = b
		c.title = title
	}
}

// WithMaxIterations sets the cycle ceiling and what happens when it is hit.
func WithMaxIterations(n int, earlyStopping string) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxIterations = n
		}
		if earlyStopping != "" {
			c.earlyStopping = earlyStopping
		}
	}
}

// WithTimeout sets the per-request budget.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithModel sets the model name and sampling temperature.
func WithModel(model string, temperature float64) Option {
	return func(c *Controller) {
		c.model = model
		c.temperature = temperature
	}
}

// WithClock sets the clock used for the prompt date.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a controller.
func New(completer llm.Completer, tools []Tool, opts ...Option) *Controller {
	d := config.Defaults()
	c := &Controller{
		completer:     completer,
		tools:         newToolset(tools),
		prompt:        prompt.Default(),
		brand:         d.Brand,
		title:         d.UI.Title,
		maxIterations: d.Assistant.MaxIterations,
		earlyStopping: d.Assistant.EarlyStopping,
		timeout:       d.Assistant.Timeout,
		temperature:   d.LLM.Temperature,
		now:           time.Now,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromSettings creates a controller configured by s.
func FromSettings(completer llm.Completer, tools []Tool, s *config.Settings, opts ...Option) *Controller {
	base := []Option{
		WithBrand(s.Brand, s.UI.Title),
		WithMaxIterations(s.Assistant.MaxIterations, s.Assistant.EarlyStopping),
		WithTimeout(s.Assistant.Timeout),
		WithModel(s.LLM.Model, s.LLM.Temperature),
	}
	return New(completer, tools, append(base, opts...)...)
}

// ToolNames lists the canonical names of the enabled tools.
func (c *Controller) ToolNames() []string { return c.tools.names() }

// run holds the state of one Run.
type run struct {
	c       *Controller
	base    string
	scratch strings.Builder
	res     Result
	// previous tool cycle, for repeat detection
	lastTool  string
	lastInput string
	lastObs   *sandbox.Observation
}

// Run answers query. It always returns a terminal Result; it never panics on
// model output.
func (c *Controller) Run(ctx context.Context, query string, history []prompt.Turn) Result {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	r := &run{c: c, res: Result{State: StateAwaitingModel}}
	base, err := c.prompt.Render(prompt.Data{
		Brand:         c.brand,
		Title:         c.title,
		Tools:         c.promptTools(),
		Datasets:      c.datasets,
		History:       history,
		Question:      query,
		MaxIterations: c.maxIterations,
		Now:           c.now(),
	})
	if err != nil {
		c.logger.Error("failed to render prompt", "error", err)
		return r.abort(fault.KindCompute)
	}
	r.base = strings.TrimRight(base, " \t\n")

	failures := 0
	for r.res.Cycles < c.maxIterations {
		if ctx.Err() != nil {
			return r.abort(fault.KindTimeout)
		}
		text, err := r.complete(ctx, r.base+r.scratch.String())
		if err != nil {
			return r.abort(modelFault(ctx, err, c.logger))
		}

		st := parseStep(text)
		switch st.kind {
		case stepFinal:
			return r.finish(text)
		case stepTool:
			tool, ok := c.tools.lookup(st.tool)
			if !ok {
				failures++
				if failures >= 2 {
					return r.abortWith(fault.KindParse, text)
				}
				r.correct(st, fmt.Sprintf(unknownToolReminder, st.tool, strings.Join(c.tools.names(), ", ")))
				continue
			}
			failures = 0
			r.invoke(ctx, tool, st)
		default:
			failures++
			c.logger.Debug("unparsable model step", "problem", st.problem, "consecutive", failures)
			if failures >= 2 {
				return r.abortWith(fault.KindParse, text)
			}
			r.correct(st, fmt.Sprintf(formatReminder, strings.Join(c.tools.names(), ", ")))
		}
	}

	if ctx.Err() != nil {
		return r.abort(fault.KindTimeout)
	}
	if c.earlyStopping != config.EarlyStopGenerate {
		return r.abort(fault.KindLoopExhausted)
	}
	text, err := r.complete(ctx, r.base+r.scratch.String()+generatePrompt)
	if err != nil {
		return r.abort(modelFault(ctx, err, c.logger))
	}
	if st := parseStep(text); st.kind == stepFinal {
		return r.finish(text)
	}
	return r.abort(fault.KindLoopExhausted)
}

func (c *Controller) promptTools() []prompt.Tool {
	out := make([]prompt.Tool, 0, len(c.tools.ordered))
	for _, t := range c.tools.ordered {
		out = append(out, prompt.Tool{Name: t.Name(), Description: t.Description()})
	}
	return out
}

func (r *run) complete(ctx context.Context, text string) (string, error) {
	r.res.Calls++
	start := time.Now()
	out, err := r.c.completer.Complete(ctx, llm.Request{
		Prompt:      text,
		Stop:        []string{StopSequence},
		Temperature: r.c.temperature,
		Model:       r.c.model,
	})
	r.c.logger.Debug("model call", "call", r.res.Calls, "elapsed", time.Since(start), "error", err)
	return out, err
}

// invoke runs one tool cycle.
func (r *run) invoke(ctx context.Context, tool Tool, st step) {
	r.transition(StateToolRequested)
	r.res.Cycles++
	r.c.logger.Info("tool requested", "cycle", r.res.Cycles, "tool", tool.Name(), "input", st.input)

	turn := Turn{Thought: st.thought, Tool: tool.Name(), Input: st.input}
	var obs sandbox.Observation
	if r.lastObs != nil && tool.Name() == r.lastTool && st.input == r.lastInput {
		obs = *r.lastObs
		obs.Text += "\n" + repeatReminder
		turn.Repeated = true
	} else {
		obs = tool.Run(ctx, st.input)
		saved := obs
		r.lastTool, r.lastInput, r.lastObs = tool.Name(), st.input, &saved
	}
	turn.Observation = obs.Text
	r.res.Observation = &obs
	r.res.Turns = append(r.res.Turns, turn)

	r.append(st.text, obs.Text)
	r.transition(StateObservationReady)
	r.transition(StateAwaitingModel)
}

// correct feeds a reminder back after an unusable step. It counts as a
// cycle so the number of model calls stays bounded.
func (r *run) correct(st step, reminder string) {
	r.res.Cycles++
	r.lastTool, r.lastInput, r.lastObs = "", "", nil
	r.res.Turns = append(r.res.Turns, Turn{Thought: st.thought, Tool: st.tool, Input: st.input, Observation: reminder, Corrective: true})
	r.append(strings.TrimRight(st.text, " \t\n"), reminder)
}

func (r *run) append(text, observation string) {
	if !strings.HasPrefix(text, " ") && !strings.HasPrefix(text, "\n") {
		r.scratch.WriteString(" ")
	}
	r.scratch.WriteString(text)
	r.scratch.WriteString("\n" + MarkerObservation + " ")
	r.scratch.WriteString(observation)
	r.scratch.WriteString("\n" + MarkerThought)
}

func (r *run) finish(text string) Result {
	r.scratch.WriteString(text)
	r.res.Final = text
	r.transition(StateFinalAnswerReceived)
	return r.result()
}

func (r *run) abort(reason fault.Kind) Result {
	return r.abortWith(reason, "")
}

func (r *run) abortWith(reason fault.Kind, text string) Result {
	r.res.Reason = reason
	r.res.Final = text
	r.transition(StateAborted)
	r.c.logger.Warn("reasoning aborted", "reason", reason, "cycles", r.res.Cycles, "calls", r.res.Calls)
	return r.result()
}

func (r *run) transition(to State) {
	r.c.logger.Debug("state transition", "from", r.res.State, "to", to, "cycle", r.res.Cycles)
	r.res.State = to
}

func (r *run) result() Result {
	r.res.Transcript = r.scratch.String()
	return r.res
}

// modelFault classifies a failed model call.
func modelFault(ctx context.Context, err error, logger *slog.Logger) fault.Kind {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		logger.Warn("model call timed out", "error", err)
		return fault.KindTimeout
	}
	logger.Error("model call failed", "error", err)
	return fault.KindCompute
}
