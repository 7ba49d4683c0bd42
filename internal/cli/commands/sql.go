package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapinsight/internal/sqltool"
	"github.com/spf13/cobra"
)

// SQLOptions holds options for the sql command.
type SQLOptions struct {
	ShowClean bool
}

// NewSQLCommand creates the sql command.
func NewSQLCommand() *cobra.Command {
	opts := &SQLOptions{}

	cmd := &cobra.Command{
		Use:   "sql <select>",
		Short: "Run a read-only SQL query against the datasets",
		Long: `Run one SELECT through the read-only SQL tool. Each dataset is a table
of the same name and df is a view over processed_data. Writes, file access
and multiple statements are rejected.`,
		Example: `  leapinsight sql "SELECT COUNT(*) FROM df WHERE Status = 'Active'"
  leapinsight sql "SELECT Managed_By, SUM(Arrears) FROM df GROUP BY 1"`,
		Args: cobra.MinimumNArgs(1),
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

			tool, err := sqltool.Open(cmd.Context(), data.Catalog,
				append(sqltool.SettingsOptions(cc.Settings), sqltool.WithLogger(cc.Logger))...)
			if err != nil {
				return err
			}
			defer func() { _ = tool.Close() }()

			obs := tool.Run(cmd.Context(), strings.Join(args, " "))
			printObservation(cc.Renderer, obs, opts.ShowClean)
			if obs.Failed() {
				return fmt.Errorf("query failed: %s", obs.Fault)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.ShowClean, "show-clean", false, "Print the cleaned query before the result")

	return cmd
}
