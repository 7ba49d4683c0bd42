package starlark

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Classification sentinels wrapped by EvalError.
var (
	ErrSyntax    = errors.New("syntax error")
	ErrUndefined = errors.New("undefined name")
	ErrStepLimit = errors.New("execution step limit exceeded")
	ErrCancelled = errors.New("execution cancelled")
)

// fileOptions is the dialect accepted for analysis snippets.
var fileOptions = syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Options configure an ExecutionContext.
type Options struct {
	// Reader serves pd.read_csv. A nil Reader makes every read fail.
	Reader Reader
	// Now is the clock behind datetime.now and pd.Timestamp.now.
	Now func() time.Time
	// PreviewRows bounds printed tables.
	PreviewRows int
	// MaxSteps bounds interpreter work; zero means DefaultMaxSteps.
	MaxSteps uint64
	// Timeout bounds wall-clock time; zero means only ctx applies.
	Timeout time.Duration
}

// Result is the outcome of a successful execution.
type Result struct {
	// Output is the captured print output.
	Output string
	// Printed reports whether anything was printed.
	Printed bool
	// Value is the trailing expression, or else the last assigned
	// identifier. It is nil when neither exists.
	Value starlark.Value
	// Name is the identifier Value was read from, if any.
	Name string
}

// ExecutionContext runs one analysis snippet against a fresh global
// environment. It must not be reused.
type ExecutionContext struct {
	rt       *Runtime
	opts     Options
	globals  starlark.StringDict
	executed bool
}

// NewExecutionContext creates an execution context with the capability table
// installed as globals.
func NewExecutionContext(opts Options) *ExecutionContext {
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = DefaultPreviewRows
	}
	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	rt := &Runtime{reader: opts.Reader, now: opts.Now, previewRows: opts.PreviewRows}
	return &ExecutionContext{rt: rt, opts: opts, globals: rt.Predeclared()}
}

// Globals returns the global environment.
func (ec *ExecutionContext) Globals() starlark.StringDict {
	return ec.globals
}

// Exec parses, rewrites and runs src.
func (ec *ExecutionContext) Exec(ctx context.Context, filename, src string) (*Result, error) {
	if ec.executed {
		return nil, errors.New("execution context already used")
	}
	ec.executed = true

	f, err := fileOptions.Parse(filename, src, 0)
	if err != nil {
		return nil, syntaxError(err)
	}
	rewriteComparisons(f)

	var trailing syntax.Expr
	if n := len(f.Stmts); n > 0 {
		if es, ok := f.Stmts[n-1].(*syntax.ExprStmt); ok {
			trailing = es.X
			f.Stmts = f.Stmts[:n-1]
		}
	}
	assigned := lastAssigned(f.Stmts)

	ctx, cancel := withTimeout(ctx, ec.opts.Timeout)
	defer cancel()
	bt := newBoundedThread(ctx, filename, ec.opts.MaxSteps)
	defer bt.release()

	if err := starlark.ExecREPLChunk(f, bt.thread, ec.globals); err != nil {
		return nil, ec.evalError(ctx, bt, filename, err)
	}

	res := &Result{Output: bt.output(), Printed: bt.printed()}
	if trailing != nil {
		v, err := starlark.EvalExprOptions(&fileOptions, bt.thread, trailing, ec.globals)
		if err != nil {
			return nil, ec.evalError(ctx, bt, filename, err)
		}
		res.Output, res.Printed = bt.output(), bt.printed()
		if v != starlark.None {
			res.Value = v
		}
		return res, nil
	}
	if assigned != "" {
		if v, ok := ec.globals[assigned]; ok {
			res.Value, res.Name = v, assigned
		}
	}
	return res, nil
}

// EvalError is a failed execution. Err is a classification sentinel or the
// underlying cause raised by a builtin.
type EvalError struct {
	Line int
	Msg  string
	// Name is the offending identifier, attribute or key, when known.
	Name string
	Err  error
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

func (e *EvalError) Unwrap() error { return e.Err }

func syntaxError(err error) error {
	var se syntax.Error
	if errors.As(err, &se) {
		return &EvalError{Line: int(se.Pos.Line), Msg: se.Msg, Err: ErrSyntax}
	}
	return &EvalError{Msg: err.Error(), Err: ErrSyntax}
}

var (
	attrPattern      = regexp.MustCompile(`has no \.(\w+) field or method`)
	keyPattern       = regexp.MustCompile(`^key (.+) not in `)
	referencePattern = regexp.MustCompile(`variable (\w+) referenced before assignment`)
)

func (ec *ExecutionContext) evalError(ctx context.Context, bt *boundedThread, filename string, err error) error {
	var list resolve.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		if name, ok := strings.CutPrefix(first.Msg, "undefined: "); ok {
			return &EvalError{Line: int(first.Pos.Line), Msg: first.Msg, Name: name, Err: ErrUndefined}
		}
		return &EvalError{Line: int(first.Pos.Line), Msg: first.Msg, Err: ErrSyntax}
	}
	var se syntax.Error
	if errors.As(err, &se) {
		return syntaxError(err)
	}

	out := &EvalError{Msg: err.Error(), Err: err}
	var ee *starlark.EvalError
	if errors.As(err, &ee) {
		out.Msg = ee.Msg
		for i := len(ee.CallStack) - 1; i >= 0; i-- {
			if pos := ee.CallStack[i].Pos; pos.Filename() == filename {
				out.Line = int(pos.Line)
				break
			}
		}
		if cause := ee.Unwrap(); cause != nil {
			out.Err = cause
		}
	}

	if m := attrPattern.FindStringSubmatch(out.Msg); m != nil {
		out.Name = m[1]
		out.Err = fmt.Errorf("%w: %s", ErrUndefined, out.Msg)
	} else if m := keyPattern.FindStringSubmatch(out.Msg); m != nil {
		out.Name = strings.Trim(m[1], `"`)
		out.Err = fmt.Errorf("%w: %s", ErrUndefined, out.Msg)
	} else if m := referencePattern.FindStringSubmatch(out.Msg); m != nil {
		out.Name = m[1]
		out.Err = fmt.Errorf("%w: %s", ErrUndefined, out.Msg)
	}

	switch {
	case ctx.Err() != nil:
		out.Err = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case bt.thread.ExecutionSteps() >= ec.opts.MaxSteps:
		out.Err = ErrStepLimit
	}
	return out
}
