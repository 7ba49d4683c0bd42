// Package cli provides the command-line interface for LeapInsight.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/leapstack-labs/leapinsight/internal/cli/commands"
	"github.com/leapstack-labs/leapinsight/internal/cli/config"
	"github.com/leapstack-labs/leapinsight/internal/cli/output"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile   string
		logCloser io.Closer
	)

	rootCmd := &cobra.Command{
		Use:   "leapinsight",
		Short: "LeapInsight - Loan Portfolio Insight Assistant",
		Long: `LeapInsight answers natural-language questions about a loan portfolio.

A language model reasons over the portfolio CSV exports by writing small
analysis snippets, which run in a sandbox, and replies with a styled HTML
answer. Use it from the terminal or serve it over HTTP.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			s, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			// doctor reports invalid settings itself
			if cmd.Name() != "doctor" {
				if err := config.Validate(s); err != nil {
					return err
				}
			}

			logger, closer, err := config.NewLogger(s.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			logCloser = closer
			cmd.SetContext(config.WithLogger(cmd.Context(), logger))

			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", configFile)
				}
			}
			logger.Debug("settings loaded", "config", config.GetConfigFileUsed(), "data_dir", s.Data.Dir, "provider", s.LLM.Provider)
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if logCloser == nil {
				return nil
			}
			err := logCloser.Close()
			logCloser = nil
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Built with Go, Starlark and DuckDB
`)

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./leapinsight.yaml, searched upward)")
	pf.String("data-dir", "", "Directory holding the dataset CSV files")
	pf.String("loader", "", "Dataset loader (csv|duckdb)")
	pf.String("provider", "", "Language model provider (ollama|scripted)")
	pf.String("model", "", "Model name")
	pf.String("llm-url", "", "Model server URL")
	pf.String("script", "", "Reply script for the scripted provider")
	pf.Int("max-iterations", 0, "Reasoning cycles per question")
	pf.Bool("sql", false, "Offer the read-only SQL tool to the model")
	pf.String("archive", "", "SQLite file recording every exchange")
	pf.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	pf.String("log-format", "", "Log format (text|json)")
	pf.String("log-file", "", "Write logs to this file, rotated")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.StringP("output", "o", config.DefaultOutput, "Output format (auto|text|markdown|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", fixedCompletions(output.Modes...))
	_ = rootCmd.RegisterFlagCompletionFunc("loader", fixedCompletions("csv", "duckdb"))
	_ = rootCmd.RegisterFlagCompletionFunc("provider", fixedCompletions("ollama", "scripted"))
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", fixedCompletions("trace", "debug", "info", "warn", "error"))
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", fixedCompletions("text", "json"))

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewAskCommand())
	rootCmd.AddCommand(commands.NewChatCommand())
	rootCmd.AddCommand(commands.NewExecCommand())
	rootCmd.AddCommand(commands.NewSQLCommand())
	rootCmd.AddCommand(commands.NewDatasetsCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewServeCommand(Version))
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

func fixedCompletions(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for LeapInsight.

To load completions:

Bash:
  $ source <(leapinsight completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ leapinsight completion bash > /etc/bash_completion.d/leapinsight
  # macOS:
  $ leapinsight completion bash > $(brew --prefix)/etc/bash_completion.d/leapinsight

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ leapinsight completion zsh > "${fpath[1]}/_leapinsight"

Fish:
  $ leapinsight completion fish | source

PowerShell:
  PS> leapinsight completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
