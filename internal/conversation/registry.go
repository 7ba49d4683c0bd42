package conversation

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/leapstack-labs/leapinsight/internal/config"
)

// Registry holds one Log per session id.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*session
	maxMessages int
	idleTTL     time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

type session struct {
	log      *Log
	lastSeen time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMaxMessages bounds every session log.
func WithMaxMessages(n int) RegistryOption {
	return func(r *Registry) { r.maxMessages = n }
}

// WithIdleTTL sets how long an untouched session survives. Zero disables
// eviction.
func WithIdleTTL(d time.Duration) RegistryOption {
	return func(r *Registry) { r.idleTTL = d }
}

// WithClock sets the registry clock.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:    make(map[string]*session),
		maxMessages: config.DefaultMaxMessages,
		idleTTL:     config.DefaultIdleTTL,
		now:         time.Now,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegistryFromSettings creates a registry configured by s.
func RegistryFromSettings(s *config.Settings, opts ...RegistryOption) *Registry {
	base := []RegistryOption{
		WithMaxMessages(s.Conversation.MaxMessages),
		WithIdleTTL(s.Conversation.IdleTTL),
	}
	return NewRegistry(append(base, opts...)...)
}

// Get returns the log for id, creating it on first use.
func (r *Registry) Get(id string) *Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		s = &session{log: newLog(r.maxMessages, r.now)}
		r.sessions[id] = s
		r.logger.Debug("session started", "session", id)
	}
	s.lastSeen = r.now()
	return s.log
}

// Clear replaces the log for id with a fresh one and returns it. Holders of
// the previous log keep their copy untouched.
func (r *Registry) Clear(id string) *Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	log := newLog(r.maxMessages, r.now)
	r.sessions[id] = &session{log: log, lastSeen: r.now()}
	r.logger.Info("conversation cleared", "session", id)
	return log
}

// Sessions returns the known session ids, sorted.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.idleTTL)
	removed := 0
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("evicted idle sessions", "count", removed)
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	if r.idleTTL <= 0 {
		<-ctx.Done()
		return nil
	}
	interval := r.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}
