package conversation

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Exchange is one archived question and answer.
type Exchange struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Outcome   string    `json:"outcome,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Archive records completed exchanges in SQLite.
type Archive struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// ArchiveOption configures an Archive.
type ArchiveOption func(*Archive)

// WithArchiveClock sets the clock stamped on recorded exchanges.
func WithArchiveClock(now func() time.Time) ArchiveOption {
	return func(a *Archive) { a.now = now }
}

// WithArchiveLogger sets the archive logger.
func WithArchiveLogger(l *slog.Logger) ArchiveOption {
	return func(a *Archive) {
		if l != nil {
			a.logger = l
		}
	}
}

// OpenArchive opens or creates the archive at path and runs pending
// migrations. Use ":memory:" for a throwaway archive.
func OpenArchive(path string, opts ...ArchiveOption) (*Archive, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping archive: %w", err)
	}
	if err := MigrateWithDB(db); err != nil {
		db.Close()
		return nil, err
	}

	a := &Archive{
		db:     db,
		path:   path,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// MigrateWithDB runs the archive migrations on db.
func MigrateWithDB(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version returns the applied migration version.
func (a *Archive) Version() (int64, error) {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite"); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}
	return goose.GetDBVersion(a.db)
}

// Path returns the path the archive was opened with.
func (a *Archive) Path() string { return a.path }

// Close closes the database.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Record stores one exchange and returns it with its id and timestamp set.
func (a *Archive) Record(ctx context.Context, sessionID, question, answer, outcome string) (Exchange, error) {
	ex := Exchange{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Question:  question,
		Answer:    answer,
		Outcome:   outcome,
		CreatedAt: a.now().UTC(),
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO exchanges (id, session_id, question, answer, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ex.ID, ex.SessionID, ex.Question, ex.Answer, ex.Outcome, ex.CreatedAt.Format(timeLayout))
	if err != nil {
		return Exchange{}, fmt.Errorf("failed to record exchange: %w", err)
	}
	a.logger.Debug("archived exchange", "session", sessionID, "id", ex.ID)
	return ex, nil
}

// Recent returns up to limit exchanges, oldest first. An empty sessionID
// covers every session; a non-positive limit returns everything.
func (a *Archive) Recent(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	query := `
		SELECT id, session_id, question, answer, outcome, created_at FROM (
			SELECT rowid AS seq, id, session_id, question, answer, outcome, created_at
			FROM exchanges
			WHERE (? = '' OR session_id = ?)
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := a.db.QueryContext(ctx, query, sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var (
			ex      Exchange
			created string
		)
		if err := rows.Scan(&ex.ID, &ex.SessionID, &ex.Question, &ex.Answer, &ex.Outcome, &created); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		ex.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q: %w", created, err)
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Sessions returns the archived session ids, most recently active first.
func (a *Archive) Sessions(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT session_id FROM exchanges
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC, session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
