package starlark

import (
	"context"
	"strings"
	"time"

	"go.starlark.net/starlark"
)

// DefaultMaxSteps bounds the interpreter work of one execution.
const DefaultMaxSteps = 5_000_000

// boundedThread is a single-use thread whose print output is captured and
// whose execution is cancelled when its context ends.
type boundedThread struct {
	thread *starlark.Thread
	out    strings.Builder
	lines  int
	stop   chan struct{}
}

func newBoundedThread(ctx context.Context, name string, maxSteps uint64) *boundedThread {
	bt := &boundedThread{stop: make(chan struct{})}
	bt.thread = &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			bt.out.WriteString(msg)
			bt.out.WriteByte('\n')
			bt.lines++
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, &ImportError{Module: module}
		},
	}
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	bt.thread.SetMaxExecutionSteps(maxSteps)
	bt.thread.SetLocal(contextKey, ctx)

	go func() {
		select {
		case <-ctx.Done():
			bt.thread.Cancel(ctx.Err().Error())
		case <-bt.stop:
		}
	}()
	return bt
}

// withTimeout derives the execution context; a zero timeout keeps ctx.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// output returns the captured print output without its final newline.
func (bt *boundedThread) output() string {
	return strings.TrimSuffix(bt.out.String(), "\n")
}

func (bt *boundedThread) printed() bool { return bt.lines > 0 }

func (bt *boundedThread) release() { close(bt.stop) }
