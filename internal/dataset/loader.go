package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// Loader reads one CSV file into a frame.
type Loader interface {
	Load(ctx context.Context, path string) (*frame.DataFrame, error)
}

// CSVLoader parses files with encoding/csv and infers cell types.
type CSVLoader struct{}

// NewCSVLoader creates a CSV loader.
func NewCSVLoader() *CSVLoader { return &CSVLoader{} }

// Load reads the file at path.
func (l *CSVLoader) Load(ctx context.Context, path string) (*frame.DataFrame, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the catalog allow-list
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(skipBOM(bufio.NewReader(f)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return frame.New(nil, nil, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	var rows [][]string
	for {
		if len(rows)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		rows = append(rows, rec)
	}
	return frame.FromRecords(header, rows)
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(r *bufio.Reader) io.Reader {
	if b, err := r.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}
