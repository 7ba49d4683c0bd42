// Package sandbox runs model-written analysis code and turns whatever it
// produces into a bounded Observation.
//
// Code is sanitized, translated into the Starlark dialect understood by
// internal/starlark and executed against a fresh environment whose only path
// to data is the dataset accessor. Execute never fails: every error becomes
// an Observation carrying a fixed user-safe message.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/fault"
	"github.com/leapstack-labs/leapinsight/internal/sanitize"
	starctx "github.com/leapstack-labs/leapinsight/internal/starlark"
	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// Filename is the name executions report in positions.
const Filename = "snippet.py"

// Evaluator executes analysis snippets.
type Evaluator struct {
	reader      starctx.Reader
	sanitizer   *sanitize.Sanitizer
	limits      config.LimitsConfig
	previewRows int
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithSanitizer replaces the default sanitizer.
func WithSanitizer(s *sanitize.Sanitizer) Option {
	return func(e *Evaluator) { e.sanitizer = s }
}

// WithLimits bounds each execution.
func WithLimits(l config.LimitsConfig) Option {
	return func(e *Evaluator) { e.limits = l }
}

// WithPreviewRows bounds table previews.
func WithPreviewRows(n int) Option {
	return func(e *Evaluator) { e.previewRows = n }
}

// WithClock sets the clock seen by snippets.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithLogger sets the evaluator logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an evaluator reading data through reader.
func New(reader starctx.Reader, opts ...Option) *Evaluator {
	e := &Evaluator{
		reader:      reader,
		sanitizer:   sanitize.New(),
		limits:      config.Defaults().Limits,
		previewRows: config.DefaultMaxRowsDisplay,
		now:         time.Now,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromSettings creates an evaluator configured by s.
func FromSettings(reader starctx.Reader, s *config.Settings, opts ...Option) *Evaluator {
	base := []Option{WithLimits(s.Limits), WithPreviewRows(s.Data.MaxRowsDisplay)}
	return New(reader, append(base, opts...)...)
}

// Execute sanitizes code and runs it.
func (e *Evaluator) Execute(ctx context.Context, code string) Observation {
	snip, err := e.sanitizer.Clean(code)
	if err != nil {
		e.logger.Debug("snippet rejected by sanitizer", "error", err)
		return e.finish(failure(fault.KindSyntax, fault.DetailOf(err)))
	}
	if len(snip.Applied) > 0 {
		e.logger.Info("repaired snippet", "rules", strings.Join(snip.Applied, ","))
	}
	return e.ExecuteSnippet(ctx, snip)
}

// ExecuteSnippet runs already-cleaned code.
func (e *Evaluator) ExecuteSnippet(ctx context.Context, snip sanitize.Snippet) (obs Observation) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during execution", "panic", r, "stack", string(debug.Stack()))
			obs = e.finish(failure(fault.KindCompute, ""))
			obs.Code = snip.Cleaned
		}
	}()

	obs = e.run(ctx, snip.Cleaned)
	obs.Code = snip.Cleaned
	return e.finish(obs)
}

func (e *Evaluator) run(ctx context.Context, code string) Observation {
	src, err := Translate(code)
	if err != nil {
		e.logger.Debug("failed to translate snippet", "error", err)
		return failure(fault.KindSyntax, "")
	}

	ec := starctx.NewExecutionContext(starctx.Options{
		Reader:      e.reader,
		Now:         e.now,
		PreviewRows: e.previewRows,
		MaxSteps:    e.limits.MaxSteps,
		Timeout:     e.limits.EvalTimeout,
	})
	start := time.Now()
	res, err := ec.Exec(ctx, Filename, src)
	if err != nil {
		kind, detail := classify(err)
		e.logger.Warn("execution failed", "fault", kind, "error", err, "elapsed", time.Since(start))
		return failure(kind, detail)
	}
	e.logger.Debug("execution finished", "elapsed", time.Since(start), "printed", res.Printed)

	obs := Observation{Bindings: bindings(ec.Globals())}
	if res.Value != nil && isResult(res.Value) {
		obs.Value = res.Value
	}
	switch {
	case res.Printed:
		obs.Text, obs.Kind = res.Output, KindText
	case obs.Value != nil:
		obs.Text, obs.Kind = describe(res.Value, e.previewRows, e.limits.MaxObservationChars)
	default:
		obs.Text, obs.Kind = NoOutput, KindText
	}
	if obs.Text == "" {
		obs.Text = NoOutput
	}
	return obs
}

func (e *Evaluator) finish(obs Observation) Observation {
	obs.Text = Bound(obs.Text, e.limits.MaxObservationChars)
	return obs
}

// isResult reports whether v is data rather than a module or function left
// behind by an import or definition.
func isResult(v starlark.Value) bool {
	if _, ok := v.(starlark.Callable); ok {
		return false
	}
	return v.Type() != "module"
}

// bindings collects the scalar globals left by a snippet. Helpers, modules
// and functions are skipped.
func bindings(globals starlark.StringDict) map[string]starlark.Value {
	out := make(map[string]starlark.Value)
	for name, v := range globals {
		if strings.HasPrefix(name, "_") || !isScalar(v) {
			continue
		}
		out[name] = v
	}
	return out
}

// classify maps an execution error onto a fault kind and a safe hint.
func classify(err error) (fault.Kind, string) {
	var ee *starctx.EvalError
	located := errors.As(err, &ee)
	var (
		ie *starctx.ImportError
		ce *frame.ColumnError
		fe *fault.Error
	)
	switch {
	case errors.Is(err, starctx.ErrCancelled), errors.Is(err, starctx.ErrStepLimit):
		return fault.KindTimeout, "the code ran too long; use vectorized column operations instead of loops"
	case errors.Is(err, starctx.ErrSyntax):
		if located && ee.Line > 0 {
			return fault.KindSyntax, fmt.Sprintf("check the syntax on line %d", ee.Line)
		}
		return fault.KindSyntax, ""
	case errors.As(err, &ie):
		return fault.KindName, fmt.Sprintf("module %q is not available; import one of %s", ie.Module, strings.Join(starctx.ModuleNames, ", "))
	case errors.As(err, &ce):
		return fault.KindName, fmt.Sprintf("column %q was not found", ce.Name)
	case errors.As(err, &fe):
		return fe.Kind, fe.Detail
	case errors.Is(err, starctx.ErrUndefined):
		if located && ee.Name != "" {
			return fault.KindName, fmt.Sprintf("%q was not found", ee.Name)
		}
		return fault.KindName, ""
	}
	return fault.KindCompute, ""
}
