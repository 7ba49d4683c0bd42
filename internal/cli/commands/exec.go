package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/leapstack-labs/leapinsight/internal/cli/output"
	"github.com/leapstack-labs/leapinsight/internal/sandbox"
	"github.com/spf13/cobra"
)

// ExecOptions holds options for the exec command.
type ExecOptions struct {
	File      string
	ShowClean bool
}

// execOutput is the JSON form of an Observation.
type execOutput struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	Fault  string `json:"fault,omitempty"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

// NewExecCommand creates the exec command.
func NewExecCommand() *cobra.Command {
	opts := &ExecOptions{}

	cmd := &cobra.Command{
		Use:   "exec [code]",
		Short: "Run an analysis snippet against the datasets",
		Long: `Run one analysis snippet through the sanitizer and the sandboxed
evaluator, then print the Observation the assistant would see.`,
		Example: `  leapinsight exec "import pandas as pd; df = pd.read_csv('processed_data.csv'); len(df)"
  leapinsight exec --file snippet.py --show-clean`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := snippetSource(args, opts.File)
			if err != nil {
				return err
			}
			return runExec(cmd, code, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Read the snippet from a file")
	cmd.Flags().BoolVar(&opts.ShowClean, "show-clean", false, "Print the cleaned code before the result")

	return cmd
}

func snippetSource(args []string, file string) (string, error) {
	switch {
	case file != "" && len(args) > 0:
		return "", fmt.Errorf("pass the snippet as an argument or with --file, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read snippet: %w", err)
		}
		return string(data), nil
	case len(args) == 1:
		return args[0], nil
	}
	return "", fmt.Errorf("no snippet given")
}

func runExec(cmd *cobra.Command, code string, opts *ExecOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	data, err := OpenData(cmd.Context(), cc.Settings, cc.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = data.Close() }()

	obs := data.Evaluator.Execute(cmd.Context(), code)
	printObservation(cc.Renderer, obs, opts.ShowClean)
	if obs.Failed() {
		return fmt.Errorf("snippet failed: %s", obs.Fault)
	}
	return nil
}

func printObservation(r *output.Renderer, obs sandbox.Observation, showCode bool) {
	if r.Mode() == output.ModeJSON {
		out := execOutput{Kind: string(obs.Kind), Text: obs.Text, Fault: string(obs.Fault), Detail: obs.Detail}
		if showCode {
			out.Code = obs.Code
		}
		_ = r.JSON(out)
		return
	}
	if showCode && obs.Code != "" {
		r.Println(r.Styles().Header.Render("Cleaned code:"))
		r.Println(strings.TrimRight(obs.Code, "\n"))
		r.Println()
	}
	if obs.Failed() {
		r.Println(r.Styles().Error.Render(obs.Text))
		return
	}
	r.Println(obs.Text)
}
