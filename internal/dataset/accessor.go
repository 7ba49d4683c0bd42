package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapinsight/internal/fault"
	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// Accessor is the only component that touches dataset files. It resolves a
// reference through the catalog, loads the file and serves cached frames.
type Accessor struct {
	catalog *Catalog
	loader  Loader
	cache   *Cache
	logger  *slog.Logger
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithCache enables frame caching.
func WithCache(c *Cache) Option {
	return func(a *Accessor) { a.cache = c }
}

// WithLogger sets the accessor logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Accessor) { a.logger = l }
}

// NewAccessor creates an accessor over catalog using loader.
func NewAccessor(catalog *Catalog, loader Loader, opts ...Option) *Accessor {
	a := &Accessor{
		catalog: catalog,
		loader:  loader,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Catalog returns the allow-list behind the accessor.
func (a *Accessor) Catalog() *Catalog { return a.catalog }

// Read returns the frame for ref. References outside the allow-list fail with
// a name fault listing the datasets that can be read. Missing or unreadable
// files fail with a dataset-unavailable fault.
func (a *Accessor) Read(ctx context.Context, ref string) (*frame.DataFrame, error) {
	ds, err := a.catalog.Lookup(ref)
	if err != nil {
		a.logger.Warn("dataset reference rejected", "ref", ref)
		return nil, fault.Wrap(fault.KindName, err,
			fmt.Sprintf("%q is not an available dataset; use one of %s", ref, strings.Join(a.catalog.Names(), ", ")))
	}
	if err := ctx.Err(); err != nil {
		return nil, fault.Wrap(fault.KindTimeout, err, "")
	}

	path := a.catalog.Path(ds)
	load := func() (*frame.DataFrame, error) { return a.loader.Load(ctx, path) }

	var df *frame.DataFrame
	if a.cache != nil {
		df, err = a.cache.Get(path, load)
	} else {
		df, err = load()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fault.Wrap(fault.KindTimeout, err, "")
		}
		detail := ds.Name + " could not be read"
		if errors.Is(err, fs.ErrNotExist) {
			detail = ds.Name + " is missing"
		}
		a.logger.Error("failed to load dataset", "dataset", ds.Name, "path", path, "error", err)
		return nil, fault.Wrap(fault.KindDatasetUnavailable, err, detail)
	}
	return df, nil
}

// Preview reads ref and returns its first n rows.
func (a *Accessor) Preview(ctx context.Context, ref string, n int) (*frame.DataFrame, error) {
	df, err := a.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	return df.Head(n), nil
}
