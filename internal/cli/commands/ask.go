package commands

import (
	"strings"

	"github.com/leapstack-labs/leapinsight/internal/answer"
	"github.com/leapstack-labs/leapinsight/internal/assistant"
	"github.com/leapstack-labs/leapinsight/internal/cli/output"
	"github.com/spf13/cobra"
)

// DefaultSessionID is the session used by one-shot commands.
const DefaultSessionID = "cli"

// AskOptions holds options for the ask command.
type AskOptions struct {
	Render  bool
	Session string
}

// NewAskCommand creates the ask command.
func NewAskCommand() *cobra.Command {
	opts := &AskOptions{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question about the loan data",
		Long: `Ask the assistant a single question and print its answer.

The answer is an HTML fragment. Use --render to print it as styled
markdown instead, or --output json for the full reply.`,
		Example: `  leapinsight ask "How many active loans do we have?"
  leapinsight ask --render "Which loan manager has the most arrears?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Render, "render", false, "Render the answer as markdown")
	cmd.Flags().StringVar(&opts.Session, "session", DefaultSessionID, "Session whose memory the question joins")

	return cmd
}

func runAsk(cmd *cobra.Command, question string, opts *AskOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	app, err := OpenApp(cmd.Context(), cc.Settings, cc.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	reply := app.Session.Ask(cmd.Context(), opts.Session, question)
	return printReply(cc.Renderer, reply, opts.Render)
}

func printReply(r *output.Renderer, reply assistant.Reply, render bool) error {
	switch {
	case r.Mode() == output.ModeJSON:
		return r.JSON(reply)
	case render:
		r.Markdown(answer.Markdown(reply.HTML))
	default:
		r.Println(reply.HTML)
	}
	return nil
}
