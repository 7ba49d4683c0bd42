// Package sqltool exposes the allow-listed datasets to the model as a
// read-only SQL surface backed by an in-memory DuckDB.
package sqltool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapinsight/internal/agent"
	"github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/dataset"
	"github.com/leapstack-labs/leapinsight/internal/fault"
	"github.com/leapstack-labs/leapinsight/internal/sandbox"
	starctx "github.com/leapstack-labs/leapinsight/internal/starlark"
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// ErrorPrefix opens the text of every failed query.
const ErrorPrefix = "Error in SQL query: "

// NoRows is the text of a query that matched nothing.
const NoRows = "No data found matching your query."

// DefaultTable is the alias of the main dataset.
const DefaultTable = "df"

// Tool runs read-only queries.
type Tool struct {
	db      *sql.DB
	tables  []string
	maxLen  int
	maxRows int
	maxText int
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Tool.
type Option func(*Tool)

// WithMaxLength bounds query text.
func WithMaxLength(n int) Option {
	return func(t *Tool) { t.maxLen = n }
}

// WithMaxRows bounds rendered rows.
func WithMaxRows(n int) Option {
	return func(t *Tool) { t.maxRows = n }
}

// WithMaxText bounds the rendered observation.
func WithMaxText(n int) Option {
	return func(t *Tool) { t.maxText = n }
}

// WithTimeout bounds each query.
func WithTimeout(d time.Duration) Option {
	return func(t *Tool) { t.timeout = d }
}

// WithLogger sets the tool logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) {
		if l != nil {
			t.logger = l
		}
	}
}

// New wraps an already loaded database.
func New(db *sql.DB, opts ...Option) *Tool {
	t := &Tool{
		db:      db,
		maxLen:  config.DefaultMaxSQLLength,
		maxRows: config.DefaultMaxRowsDisplay,
		maxText: config.DefaultMaxObservationChars,
		timeout: config.DefaultEvalTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SettingsOptions returns the options s implies.
func SettingsOptions(s *config.Settings) []Option {
	return []Option{
		WithMaxLength(s.Tools.MaxSQLLength),
		WithMaxRows(s.Data.MaxRowsDisplay),
		WithMaxText(s.Limits.MaxObservationChars),
		WithTimeout(s.Limits.EvalTimeout),
	}
}

// Open loads every catalog dataset into a fresh in-memory DuckDB as a table
// of the same name, then locks the database against file access.
// Datasets whose files are missing are skipped.
func Open(ctx context.Context, catalog *dataset.Catalog, opts ...Option) (*Tool, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	t := New(db, opts...)
	if err := t.load(ctx, catalog); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Tool) load(ctx context.Context, catalog *dataset.Catalog) error {
	for _, d := range catalog.Datasets() {
		path := strings.ReplaceAll(catalog.Path(d), "'", "''")
		stmt := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)`, quoteIdent(d.Name), path) //nolint:gosec // names and paths come from the catalog
		if _, err := t.db.ExecContext(ctx, stmt); err != nil {
			t.logger.Warn("dataset not loaded into sql tool", "dataset", d.Name, "error", err)
			continue
		}
		t.tables = append(t.tables, d.Name)
	}
	if len(t.tables) > 0 {
		main := t.tables[0]
		for _, name := range t.tables {
			if name == config.DefaultDataset {
				main = name
			}
		}
		stmt := fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s", DefaultTable, quoteIdent(main))
		if _, err := t.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create %s view: %w", DefaultTable, err)
		}
	}
	for _, stmt := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := t.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to lock database: %w", err)
		}
	}
	t.logger.Info("sql tool ready", "tables", strings.Join(t.tables, ","))
	return nil
}

// Close releases the database.
func (t *Tool) Close() error {
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}

// Tables returns the loaded table names.
func (t *Tool) Tables() []string { return append([]string(nil), t.tables...) }

// Name implements agent.Tool.
func (t *Tool) Name() string { return agent.ToolFetchData }

// Aliases implements agent.Tool.
func (t *Tool) Aliases() []string { return []string{"sql"} }

// Description implements agent.Tool.
func (t *Tool) Description() string {
	return "Use this tool to query loan data. Input should be a single SQL SELECT statement using the 'df' table " +
		"or a dataset table by name. Column names with spaces must be enclosed in double quotes or backticks."
}

// Run implements agent.Tool.
func (t *Tool) Run(ctx context.Context, input string) sandbox.Observation {
	query, err := Clean(input, t.maxLen)
	if err != nil {
		t.logger.Debug("query rejected", "error", err)
		return failure(fault.KindSQL, strings.TrimPrefix(err.Error(), ErrRejected.Error()+": "))
	}
	obs := t.Query(ctx, query)
	obs.Code = query
	return obs
}

// Query executes an already cleaned statement.
func (t *Tool) Query(ctx context.Context, query string) sandbox.Observation {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	//nolint:rowserrcheck // rows.Err() is checked in ScanFrame
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return t.queryFailure(ctx, query, err)
	}
	defer func() { _ = rows.Close() }()

	df, err := dataset.ScanFrame(rows)
	if err != nil {
		return t.queryFailure(ctx, query, err)
	}
	t.logger.Debug("query finished", "rows", df.Len(), "elapsed", time.Since(start))

	if df.Len() == 0 {
		return sandbox.Observation{Text: NoRows, Kind: sandbox.KindText}
	}
	obs := sandbox.Observation{
		Text: sandbox.Bound(starctx.FitFrame(df, t.maxRows, t.maxText), t.maxText),
		Kind: sandbox.KindTable,
	}
	if df.Len() == 1 {
		row := df.Row(0)
		obs.Bindings = make(map[string]starlark.Value, len(row))
		dict := starlark.NewDict(len(row))
		for _, col := range df.Columns() {
			v := starctx.CellToValue(row[col])
			obs.Bindings[col] = v
			_ = dict.SetKey(starlark.String(col), v)
		}
		obs.Value = dict
		if cols := df.Columns(); len(cols) == 1 {
			obs.Value = obs.Bindings[cols[0]]
			obs.Kind = sandbox.KindScalar
		}
	}
	return obs
}

func (t *Tool) queryFailure(ctx context.Context, query string, err error) sandbox.Observation {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.logger.Warn("query timed out", "query", query)
		return failure(fault.KindTimeout, "the query ran too long; aggregate in SQL instead of selecting every row")
	}
	t.logger.Warn("query failed", "query", query, "error", err)
	return failure(fault.KindSQL, hint(err))
}

// hint turns a database error into a safe suggestion without echoing the
// engine message.
func hint(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "column") && (strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")):
		return "a column was not found; check the column names and quote names with spaces"
	case strings.Contains(msg, "table") && (strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found")):
		return fmt.Sprintf("a table was not found; query %s or a dataset by name", DefaultTable)
	case strings.Contains(msg, "syntax error") || strings.Contains(msg, "parser error"):
		return "check the SQL syntax"
	}
	return ""
}

func failure(k fault.Kind, detail string) sandbox.Observation {
	text := ErrorPrefix + fault.Message(k)
	if detail != "" {
		text += " Hint: " + detail
	}
	return sandbox.Observation{Text: text, Kind: sandbox.KindError, Fault: k, Detail: detail}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
