package dataset

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

type cacheEntry struct {
	modTime time.Time
	size    int64
	df      *frame.DataFrame
}

// Cache holds parsed frames keyed by path. An entry is valid while the file's
// modification time and size are unchanged. Frames are immutable, so one
// cached frame is shared by every reader.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	sfGroup singleflight.Group
	logger  *slog.Logger
}

// NewCache creates an empty cache.
func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		logger:  logger,
	}
}

// Get returns the cached frame for path, calling load when the entry is
// missing or stale. Concurrent misses for the same path share one load.
func (c *Cache) Get(path string, load func() (*frame.DataFrame, error)) (*frame.DataFrame, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	e, ok := c.entries[path]
	c.mu.RUnlock()
	if ok && e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
		return e.df, nil
	}

	v, err, _ := c.sfGroup.Do(path, func() (interface{}, error) {
		df, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[path] = cacheEntry{modTime: info.ModTime(), size: info.Size(), df: df}
		c.mu.Unlock()
		c.logger.Debug("dataset loaded", "path", path, "rows", df.Len())
		return df, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*frame.DataFrame), nil
}

// Invalidate drops the entry for path.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Len returns the number of cached frames.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Watch evicts entries as soon as their files change under dir. It blocks
// until ctx is done.
func (c *Cache) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	c.logger.Info("watching data directory", "dir", dir)

	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			path := filepath.Clean(event.Name)
			c.Invalidate(path)

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				c.logger.Info("dataset changed, cache entry evicted", "file", path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Error("watcher error", "error", err)
		}
	}
}
