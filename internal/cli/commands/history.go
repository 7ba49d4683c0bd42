package commands

import (
	"errors"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapinsight/internal/answer"
	"github.com/leapstack-labs/leapinsight/internal/cli/output"
	"github.com/leapstack-labs/leapinsight/internal/conversation"
	"github.com/spf13/cobra"
)

const defaultHistoryLimit = 20

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Session string
	Limit   int
	Full    bool
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived questions and answers",
		Long: `Show the most recent exchanges recorded in the conversation archive.
The archive is enabled by conversation.archive or --archive.`,
		Example: `  leapinsight history --limit 5
  leapinsight history --session cli --full`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "Only show this session (default: all)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", defaultHistoryLimit, "Number of exchanges to show")
	cmd.Flags().BoolVar(&opts.Full, "full", false, "Show answers in full instead of a summary")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	path := cc.Settings.Conversation.Archive
	if path == "" {
		return errors.New("no conversation archive configured\nHint: set conversation.archive or pass --archive")
	}
	archive, err := openArchive(path, cc.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = archive.Close() }()

	exchanges, err := archive.Recent(cmd.Context(), opts.Session, opts.Limit)
	if err != nil {
		return err
	}
	return printHistory(cc.Renderer, exchanges, opts.Full)
}

func printHistory(r *output.Renderer, exchanges []conversation.Exchange, full bool) error {
	if r.Mode() == output.ModeJSON {
		if exchanges == nil {
			exchanges = []conversation.Exchange{}
		}
		return r.JSON(exchanges)
	}
	if len(exchanges) == 0 {
		r.Muted("No exchanges archived yet.")
		return nil
	}

	if full {
		for _, e := range exchanges {
			r.Println(r.Styles().Header.Render(e.CreatedAt.Local().Format("2006-01-02 15:04:05") + "  " + e.SessionID))
			r.Println(r.Styles().Bold.Render("Q: ") + e.Question)
			r.Markdown(answer.Markdown(e.Answer))
			r.Println()
		}
		return nil
	}

	t := newTable(r)
	t.AppendHeader(table.Row{"Time", "Session", "Question", "Outcome"})
	for _, e := range exchanges {
		t.AppendRow(table.Row{e.CreatedAt.Local().Format("2006-01-02 15:04"), e.SessionID, clip(e.Question, 60), e.Outcome})
	}
	renderTable(r, t)
	return nil
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
