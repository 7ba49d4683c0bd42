package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapinsight/internal/cli/output"
	intconfig "github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Force   bool
	Example bool
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new LeapInsight project",
		Long: `Initialize a new LeapInsight project with a configuration file and a data directory.

This creates:
  - leapinsight.yaml configuration file
  - data/ directory for the portfolio CSV exports

Use --example to create a working demo with a sample portfolio and canned
model replies, so the assistant can be tried without a model server.`,
		Example: `  # Initialize in current directory
  leapinsight init

  # Initialize with a working example
  leapinsight init --example

  # Initialize in a new directory
  leapinsight init my-portfolio --example

  # Force overwrite existing config
  leapinsight init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			mode, err := outputMode(cmd)
			if err != nil {
				return err
			}
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
			return runInit(r, dir, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&opts.Example, "example", false, "Create an example project with sample data and scripted replies")

	return cmd
}

func runInit(r *output.Renderer, dir string, opts *InitOptions) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, intconfig.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", intconfig.ConfigFileName)
	}

	name := templateMinimal
	if opts.Example {
		name = templateExample
	}
	written, skipped, err := copyTemplate(name, dir, opts.Force)
	if err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	if r.Mode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"dir":      dir,
			"template": name,
			"written":  written,
			"skipped":  skipped,
		})
	}

	groups := groupTemplateFiles(written)
	check := r.Styles().Success.Render("✓")
	for _, group := range []string{"config", "data"} {
		if len(groups[group]) == 0 {
			continue
		}
		r.Markdown(output.FormatHeader(2, cases.Title(language.English).String(group)))
		for _, f := range groups[group] {
			r.Printf("  %s %s\n", check, f)
		}
		r.Println()
	}
	for _, f := range skipped {
		r.Muted("  - %s (exists, skipped)", f)
	}

	if opts.Example {
		r.Println(r.Styles().Success.Render("LeapInsight project initialized with example data!"))
		r.Println()
		r.Println("Next steps:")
		r.Println("  leapinsight datasets                      Check the sample datasets")
		r.Println("  leapinsight ask \"What are total arrears?\"  Ask a question")
		r.Println("  leapinsight chat                          Start an interactive session")
		r.Println("  leapinsight serve                         Serve the HTTP API")
		return nil
	}

	r.Println(r.Styles().Success.Render("LeapInsight project initialized!"))
	r.Println()
	r.Println("Next steps:")
	r.Println("  1. Copy your portfolio CSV exports into data/")
	r.Println("  2. Run 'leapinsight doctor' to check the setup")
	r.Println("  3. Run 'leapinsight chat' to start asking questions")
	return nil
}
