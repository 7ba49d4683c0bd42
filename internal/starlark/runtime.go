package starlark

import (
	"context"
	"time"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// Reader loads an allow-listed dataset by name.
type Reader interface {
	Read(ctx context.Context, name string) (*frame.DataFrame, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, name string) (*frame.DataFrame, error)

// Read calls f.
func (f ReaderFunc) Read(ctx context.Context, name string) (*frame.DataFrame, error) {
	return f(ctx, name)
}

// DefaultPreviewRows bounds how many rows a printed table shows.
const DefaultPreviewRows = 10

// Runtime is shared by every value created during one execution.
type Runtime struct {
	reader      Reader
	now         func() time.Time
	previewRows int
}

func (rt *Runtime) frame(df *frame.DataFrame) *Frame {
	return &Frame{rt: rt, df: df}
}

func (rt *Runtime) series(s *frame.Series) *Series {
	return &Series{rt: rt, s: s}
}

const contextKey = "context"

// threadContext returns the request context stored on the thread.
func threadContext(thread *starlark.Thread) context.Context {
	if thread != nil {
		if ctx, ok := thread.Local(contextKey).(context.Context); ok {
			return ctx
		}
	}
	return context.Background()
}
