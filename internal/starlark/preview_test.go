package starlark

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

func wideFrame(t *testing.T, rows, cols int) *frame.DataFrame {
	t.Helper()
	names := make([]string, cols)
	data := make([][]any, cols)
	for c := range cols {
		names[c] = fmt.Sprintf("Column_%02d", c)
		data[c] = make([]any, rows)
		for r := range rows {
			data[c][r] = int64(r * c)
		}
	}
	df, err := frame.New(names, data, nil)
	require.NoError(t, err)
	return df
}

func TestRenderFrame_KeepsHeaderCase(t *testing.T) {
	df := wideFrame(t, 2, 2)
	out := RenderFrame(df, 10)
	assert.Contains(t, out, "Column_00")
	assert.NotContains(t, out, "COLUMN_00")

	out = RenderSeries(frame.NewSeries("Due_Today", []any{int64(1)}, nil), 10)
	assert.Contains(t, out, "Due_Today")
}

func TestFitFrame(t *testing.T) {
	tests := []struct {
		name     string
		rows     int
		maxRows  int
		maxChars int
		note     string
	}{
		{name: "fits unchanged", rows: 3, maxRows: 10, maxChars: 100_000},
		{name: "row cap only", rows: 12, maxRows: 10, maxChars: 100_000, note: "(showing 10 of 12 rows)"},
		{name: "rows dropped to fit", rows: 12, maxRows: 10, maxChars: 2000, note: "of 12 rows)"},
		{name: "no char limit", rows: 12, maxRows: 10, note: "(showing 10 of 12 rows)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FitFrame(wideFrame(t, tt.rows, 20), tt.maxRows, tt.maxChars)
			if tt.maxChars > 0 {
				assert.LessOrEqual(t, utf8.RuneCountInString(out), tt.maxChars)
			}
			if tt.note == "" {
				assert.NotContains(t, out, "(showing")
				return
			}
			assert.True(t, strings.HasSuffix(out, tt.note), out)
		})
	}
}

func TestFitFrame_KeepsOneRow(t *testing.T) {
	out := FitFrame(wideFrame(t, 5, 20), 10, 10)
	assert.True(t, strings.HasSuffix(out, TruncationNote(1, 5)), out)
}
