package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapinsight/internal/testutil"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestRegistry_GetIsPerSession(t *testing.T) {
	r := NewRegistry(WithLogger(testutil.NewTestLogger(t)))

	a := r.Get("a")
	a.AppendExchange("q", "ans")

	assert.Same(t, a, r.Get("a"))
	assert.Equal(t, 0, r.Get("b").Len())
	assert.Equal(t, []string{"a", "b"}, r.Sessions())
}

func TestRegistry_ClearInstallsFreshLog(t *testing.T) {
	r := NewRegistry()
	old := r.Get("s")
	old.AppendExchange("q", "a")

	fresh := r.Clear("s")

	assert.NotSame(t, old, fresh)
	assert.Equal(t, 0, fresh.Len())
	assert.Same(t, fresh, r.Get("s"))
	assert.Equal(t, 2, old.Len(), "the previous log is not mutated")
}

func TestRegistry_MaxMessages(t *testing.T) {
	r := NewRegistry(WithMaxMessages(2))
	log := r.Get("s")
	log.AppendExchange("q1", "a1")
	log.AppendExchange("q2", "a2")

	require.Equal(t, 2, log.Len())
	assert.Equal(t, "q2", log.All()[0].Content)
}

func TestRegistry_Sweep(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		idle    time.Duration
		removed int
	}{
		{name: "fresh session kept", ttl: time.Hour, idle: 10 * time.Minute, removed: 0},
		{name: "idle session evicted", ttl: time.Hour, idle: 2 * time.Hour, removed: 1},
		{name: "eviction disabled", ttl: 0, idle: 48 * time.Hour, removed: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &clock{t: time.Date(2025, 3, 18, 9, 0, 0, 0, time.UTC)}
			r := NewRegistry(WithIdleTTL(tt.ttl), WithClock(c.now))
			r.Get("s")

			c.t = c.t.Add(tt.idle)
			assert.Equal(t, tt.removed, r.Sweep())
			assert.Len(t, r.Sessions(), 1-tt.removed)
		})
	}
}

func TestRegistry_GetRefreshesLastSeen(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 18, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry(WithIdleTTL(time.Hour), WithClock(c.now))
	r.Get("s")

	c.t = c.t.Add(50 * time.Minute)
	r.Get("s")
	c.t = c.t.Add(50 * time.Minute)

	assert.Equal(t, 0, r.Sweep())
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	r := NewRegistry(WithIdleTTL(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
