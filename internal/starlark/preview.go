package starlark

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/leapstack-labs/leapinsight/pkg/frame"
)

// TruncationNote is appended to a preview that does not show every row.
func TruncationNote(shown, total int) string {
	return fmt.Sprintf("(showing %d of %d rows)", shown, total)
}

// PreviewStyle is the light box style with headers printed as given.
func PreviewStyle() table.Style {
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	style.Format.Footer = text.FormatDefault
	return style
}

// FitFrame renders df like RenderFrame, dropping rows until the preview
// fits in maxChars runes. At least one row is kept.
func FitFrame(df *frame.DataFrame, maxRows, maxChars int) string {
	return fit(df.Len(), maxRows, maxChars, func(rows int) string { return RenderFrame(df, rows) })
}

// FitSeries is FitFrame for a series.
func FitSeries(s *frame.Series, maxRows, maxChars int) string {
	return fit(s.Len(), maxRows, maxChars, func(rows int) string { return RenderSeries(s, rows) })
}

func fit(total, maxRows, maxChars int, render func(rows int) string) string {
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}
	out := render(maxRows)
	for rows := min(maxRows, total) - 1; maxChars > 0 && rows >= 1 && utf8.RuneCountInString(out) > maxChars; rows-- {
		out = render(rows)
	}
	return out
}

// RenderFrame renders at most maxRows rows of df as a text table. When rows
// are cut the table is followed by a truncation note.
func RenderFrame(df *frame.DataFrame, maxRows int) string {
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}
	cols := df.Columns()
	if len(cols) == 0 {
		return fmt.Sprintf("Empty DataFrame (%d rows, 0 columns)", df.Len())
	}
	if df.Len() == 0 {
		return fmt.Sprintf("Empty DataFrame\nColumns: [%s]", strings.Join(cols, ", "))
	}

	t := table.NewWriter()
	t.SetStyle(PreviewStyle())

	header := make(table.Row, len(cols)+1)
	header[0] = ""
	for i, c := range cols {
		header[i+1] = c
	}
	t.AppendHeader(header)

	shown := min(df.Len(), maxRows)
	index := df.Index()
	for r := 0; r < shown; r++ {
		values := df.RowValues(r)
		row := make(table.Row, len(values)+1)
		row[0] = frame.FormatValue(index[r])
		for i, v := range values {
			row[i+1] = frame.FormatValue(v)
		}
		t.AppendRow(row)
	}

	out := t.Render()
	if shown < df.Len() {
		out += "\n" + TruncationNote(shown, df.Len())
	}
	return out
}

// RenderSeries renders at most maxRows values of s as an index/value table.
func RenderSeries(s *frame.Series, maxRows int) string {
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}
	name := s.Name()
	if s.Len() == 0 {
		return fmt.Sprintf("Series([], Name: %s)", name)
	}

	t := table.NewWriter()
	t.SetStyle(PreviewStyle())
	valueHeader := name
	if valueHeader == "" {
		valueHeader = "value"
	}
	t.AppendHeader(table.Row{"", valueHeader})

	shown := min(s.Len(), maxRows)
	for i := 0; i < shown; i++ {
		t.AppendRow(table.Row{labelString(s.Label(i)), frame.FormatValue(s.At(i))})
	}

	out := t.Render()
	if shown < s.Len() {
		out += "\n" + TruncationNote(shown, s.Len())
	}
	return out
}

func labelString(label any) string {
	return frame.FormatValue(label)
}

// dtypeOf names the pandas dtype that best describes values.
func dtypeOf(values []any) string {
	kind := ""
	for _, v := range values {
		var k string
		switch v.(type) {
		case nil:
			continue
		case int64, int:
			k = "int64"
		case float64:
			k = "float64"
		case bool:
			k = "bool"
		case time.Time:
			k = "datetime64[ns]"
		case time.Duration:
			k = "timedelta64[ns]"
		default:
			return "object"
		}
		switch {
		case kind == "":
			kind = k
		case kind == k:
		case (kind == "int64" && k == "float64") || (kind == "float64" && k == "int64"):
			kind = "float64"
		default:
			return "object"
		}
	}
	if kind == "" {
		return "object"
	}
	return kind
}
