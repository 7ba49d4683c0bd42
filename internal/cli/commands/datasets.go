package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapinsight/internal/cli/output"
	"github.com/leapstack-labs/leapinsight/internal/dataset"
	starctx "github.com/leapstack-labs/leapinsight/internal/starlark"
	"github.com/leapstack-labs/leapinsight/pkg/frame"
	"github.com/spf13/cobra"
)

// DatasetsOptions holds options for the datasets command.
type DatasetsOptions struct {
	Head int
}

// datasetOutput is the JSON form of one dataset.
type datasetOutput struct {
	Name        string           `json:"name"`
	File        string           `json:"file"`
	Description string           `json:"description,omitempty"`
	Available   bool             `json:"available"`
	Columns     []dataset.Column `json:"columns,omitempty"`
	JoinKeys    []string         `json:"join_keys,omitempty"`
	Preview     []map[string]any `json:"preview,omitempty"`
}

// NewDatasetsCommand creates the datasets command.
func NewDatasetsCommand() *cobra.Command {
	opts := &DatasetsOptions{}

	cmd := &cobra.Command{
		Use:   "datasets [name]",
		Short: "List the datasets or show one schema",
		Long: `List the allow-listed datasets, or show the documented columns of one.
With --head, the first rows of the dataset are printed as well.`,
		Example: `  leapinsight datasets
  leapinsight datasets processed_data --head 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			data, err := OpenData(cmd.Context(), cc.Settings, cc.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = data.Close() }()

			if len(args) == 0 {
				return listDatasets(cc.Renderer, data.Catalog)
			}
			return showDataset(cmd, cc.Renderer, data, args[0], opts.Head)
		},
	}

	cmd.Flags().IntVar(&opts.Head, "head", 0, "Show the first N rows")

	return cmd
}

func available(c *dataset.Catalog, d dataset.Dataset) bool {
	info, err := os.Stat(c.Path(d))
	return err == nil && !info.IsDir()
}

func listDatasets(r *output.Renderer, c *dataset.Catalog) error {
	if r.Mode() == output.ModeJSON {
		out := make([]datasetOutput, 0, len(c.Datasets()))
		for _, d := range c.Datasets() {
			out = append(out, datasetOutput{Name: d.Name, File: d.File, Description: d.Description, Available: available(c, d)})
		}
		return r.JSON(out)
	}

	t := newTable(r)
	t.AppendHeader(table.Row{"Name", "File", "Columns", "Available", "Description"})
	for _, d := range c.Datasets() {
		t.AppendRow(table.Row{d.Name, d.File, len(d.Columns), yesNo(available(c, d)), d.Description})
	}
	renderTable(r, t)
	return nil
}

func showDataset(cmd *cobra.Command, r *output.Renderer, data *Data, name string, head int) error {
	d, err := data.Catalog.Lookup(name)
	if err != nil {
		return fmt.Errorf("unknown dataset %q (available: %s)", name, strings.Join(data.Catalog.Names(), ", "))
	}

	var preview *frame.DataFrame
	if head > 0 {
		if preview, err = data.Accessor.Preview(cmd.Context(), d.Name, head); err != nil {
			return fmt.Errorf("failed to read %s: %w", d.Name, err)
		}
	}

	if r.Mode() == output.ModeJSON {
		out := datasetOutput{
			Name:        d.Name,
			File:        d.File,
			Description: d.Description,
			Available:   available(data.Catalog, d),
			Columns:     d.Columns,
			JoinKeys:    d.JoinKeys,
		}
		if preview != nil {
			out.Preview = preview.Records()
		}
		return r.JSON(out)
	}

	r.Println(r.Styles().Header.Render(d.Name) + " (" + d.File + ")")
	if d.Description != "" {
		r.Println(d.Description)
	}
	if len(d.JoinKeys) > 0 {
		r.Muted("Join keys: %s", strings.Join(d.JoinKeys, ", "))
	}
	r.Println()

	if len(d.Columns) > 0 {
		t := newTable(r)
		t.AppendHeader(table.Row{"Column", "Type", "Description"})
		for _, c := range d.Columns {
			t.AppendRow(table.Row{c.Name, c.Type, c.Description})
		}
		renderTable(r, t)
	}

	if preview != nil {
		r.Println()
		renderFrame(r, preview)
	}
	return nil
}

// renderFrame prints a frame as a table.
func renderFrame(r *output.Renderer, df *frame.DataFrame) {
	rows, _ := df.Shape()
	if rows == 0 {
		r.Println("(0 rows)")
		return
	}
	cols := df.Columns()
	t := newTable(r)
	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	t.AppendHeader(header)
	for i := 0; i < rows; i++ {
		values := df.RowValues(i)
		row := make(table.Row, len(values))
		for j, v := range values {
			row[j] = frame.FormatValue(v)
		}
		t.AppendRow(row)
	}
	renderTable(r, t)
}

func newTable(r *output.Renderer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.Out())
	t.SetStyle(starctx.PreviewStyle())
	return t
}

func renderTable(r *output.Renderer, t table.Writer) {
	if r.Mode() == output.ModeMarkdown {
		t.RenderMarkdown()
		return
	}
	t.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
