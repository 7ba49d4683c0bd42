package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// DuckDBLoader reads CSV files through DuckDB's read_csv_auto, which sniffs
// delimiters, dates and numeric types.
type DuckDBLoader struct {
	db *sql.DB
}

// NewDuckDBLoader opens an in-memory DuckDB used only for CSV parsing.
func NewDuckDBLoader(ctx context.Context) (*DuckDBLoader, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	return &DuckDBLoader{db: db}, nil
}

// Close releases the DuckDB connection.
func (l *DuckDBLoader) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Load reads the file at path.
func (l *DuckDBLoader) Load(ctx context.Context, path string) (*frame.DataFrame, error) {
	escaped := strings.ReplaceAll(path, "'", "''")
	query := fmt.Sprintf("SELECT * FROM read_csv_auto('%s', header=true)", escaped) //nolint:gosec // path comes from the catalog allow-list

	//nolint:rowserrcheck // rows.Err() is checked in ScanFrame
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer func() { _ = rows.Close() }()

	return ScanFrame(rows)
}

// ScanFrame collects SQL rows into a frame, normalizing driver types to frame
// cells.
func ScanFrame(rows *sql.Rows) (*frame.DataFrame, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	data := make([][]any, len(cols))
	for rows.Next() {
		values := make([]any, len(cols))
		valuePtrs := make([]any, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			data[i] = append(data[i], normalizeCell(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range data {
		if data[i] == nil {
			data[i] = []any{}
		}
	}
	return frame.New(cols, data, nil)
}

func normalizeCell(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case string, bool, float64, int64, time.Time:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val) //nolint:gosec // CSV counts fit in int64
	case float32:
		return float64(val)
	case *big.Int:
		if val.IsInt64() {
			return val.Int64()
		}
		f, _ := new(big.Float).SetInt(val).Float64()
		return f
	case interface{ Float64() float64 }:
		return val.Float64()
	}
	return fmt.Sprint(v)
}
