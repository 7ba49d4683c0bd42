package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapinsight/internal/testutil"
)

func setupTestArchive(t *testing.T, now func() time.Time) *Archive {
	t.Helper()
	a, err := OpenArchive(":memory:", WithArchiveClock(now), WithArchiveLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchive_Migrates(t *testing.T) {
	a := setupTestArchive(t, time.Now)

	version, err := a.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestArchive_RecordAndRecent(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 18, 9, 0, 0, 0, time.UTC)}
	a := setupTestArchive(t, c.now)
	ctx := context.Background()

	for _, rec := range []struct{ session, q string }{
		{"s1", "first"}, {"s2", "other"}, {"s1", "second"}, {"s1", "third"},
	} {
		_, err := a.Record(ctx, rec.session, rec.q, "<div>"+rec.q+"</div>", "marker")
		require.NoError(t, err)
		c.t = c.t.Add(time.Minute)
	}

	tests := []struct {
		name    string
		session string
		limit   int
		want    []string
	}{
		{name: "one session", session: "s1", limit: 0, want: []string{"first", "second", "third"}},
		{name: "limit keeps newest", session: "s1", limit: 2, want: []string{"second", "third"}},
		{name: "all sessions", session: "", limit: 0, want: []string{"first", "other", "second", "third"}},
		{name: "unknown session", session: "nobody", limit: 5, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Recent(ctx, tt.session, tt.limit)
			require.NoError(t, err)
			var questions []string
			for _, ex := range got {
				questions = append(questions, ex.Question)
			}
			assert.Equal(t, tt.want, questions)
		})
	}

	sessions, err := a.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, sessions)
}

func TestArchive_RecordFields(t *testing.T) {
	at := time.Date(2025, 3, 18, 9, 30, 0, 123, time.UTC)
	a := setupTestArchive(t, func() time.Time { return at })
	ctx := context.Background()

	ex, err := a.Record(ctx, "s", "q", "a", "fallback")
	require.NoError(t, err)
	assert.NotEmpty(t, ex.ID)

	got, err := a.Recent(ctx, "s", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ex, got[0])
}

func TestArchive_ReopenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	a, err := OpenArchive(path)
	require.NoError(t, err)
	_, err = a.Record(ctx, "s", "q", "a", "")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := OpenArchive(path)
	require.NoError(t, err)
	defer b.Close()
	got, err := b.Recent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, path, b.Path())
}
