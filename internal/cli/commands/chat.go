package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/leapinsight/internal/answer"
	"github.com/leapstack-labs/leapinsight/internal/assistant"
	"github.com/leapstack-labs/leapinsight/internal/cli/output"
	"github.com/leapstack-labs/leapinsight/internal/conversation"
	"github.com/leapstack-labs/leapinsight/internal/dataset"
	"github.com/spf13/cobra"
)

const (
	chatPrompt      = "leapinsight> "
	historyFileName = ".leapinsight_history"
)

// ChatOptions holds options for the chat command.
type ChatOptions struct {
	Session     string
	HistoryFile string
	Raw         bool
}

// NewChatCommand creates the chat command.
func NewChatCommand() *cobra.Command {
	opts := &ChatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation with the assistant.

Questions share one session, so follow-ups can refer to earlier answers.
Type .help for commands and .quit to exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", DefaultSessionID, "Session id for the conversation")
	cmd.Flags().StringVar(&opts.HistoryFile, "history-file", "", "Line history file (default: ~/"+historyFileName+")")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "Print answers as HTML instead of markdown")

	return cmd
}

func runChat(cmd *cobra.Command, opts *ChatOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	app, err := OpenApp(cmd.Context(), cc.Settings, cc.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	historyFile := opts.HistoryFile
	if historyFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			historyFile = filepath.Join(home, historyFileName)
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          chatPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newChatCompleter(app.Session),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	c := &chat{
		session:  app.Session,
		catalog:  app.Catalog,
		renderer: cc.Renderer,
		id:       opts.Session,
		raw:      opts.Raw,
	}
	return c.loop(cmd.Context(), rl)
}

// lineReader is the part of readline the loop needs.
type lineReader interface {
	Readline() (string, error)
}

type chat struct {
	session  *assistant.Session
	catalog  *dataset.Catalog
	renderer *output.Renderer
	id       string
	raw      bool
}

func (c *chat) loop(ctx context.Context, rl lineReader) error {
	r := c.renderer
	r.Println(r.Styles().Header.Render(c.title()))
	if w := c.session.Welcome(); w != "" {
		r.Println(w)
	}
	r.Muted("Type .help for commands, .quit to exit")
	r.Println()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ".") {
			if quit := c.dotCommand(line); quit {
				return nil
			}
			continue
		}

		reply := c.session.Ask(ctx, c.id, line)
		if c.raw {
			r.Println(reply.HTML)
		} else {
			r.Markdown(answer.Markdown(reply.HTML))
		}
		r.Println()
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *chat) title() string {
	return "LeapInsight chat (session: " + c.id + ")"
}

// dotCommand runs a REPL command and reports whether the loop should end.
func (c *chat) dotCommand(line string) bool {
	r := c.renderer
	parts := strings.Fields(line)
	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true

	case ".help":
		printChatHelp(r.Out())

	case ".clear":
		r.Println(c.session.ClearConversation(c.id))

	case ".history":
		messages := c.session.ListConversation(c.id)
		if len(messages) == 0 {
			r.Muted("No messages yet.")
			return false
		}
		for _, m := range messages {
			content := m.Content
			if m.Role == conversation.RoleAssistant {
				content = answer.Markdown(content)
			}
			r.Printf("%s %s\n", r.Styles().Prompt.Render(string(m.Role)+":"), content)
		}

	case ".datasets":
		for _, d := range c.catalog.Datasets() {
			r.Printf("%-16s %s\n", d.Name, d.Description)
		}

	case ".suggestions":
		for _, s := range c.session.Suggestions() {
			r.Printf("%s  %s\n", r.Styles().Bold.Render(s.Text), s.Query)
		}

	default:
		r.Warn("Unknown command: %s (type .help for commands)", parts[0])
	}
	return false
}

func printChatHelp(w io.Writer) {
	help := `
Commands:
  .help           Show this help message
  .clear          Forget the conversation so far
  .history        Show the remembered conversation
  .datasets       List the datasets the assistant can read
  .suggestions    Show example questions
  .quit / .exit   Exit the chat

Tips:
  - Follow-up questions can refer to earlier answers
  - Use arrow keys to navigate history
  - Tab completion works for commands and example questions
`
	_, _ = fmt.Fprintln(w, help)
}

// newChatCompleter completes dot-commands and the canned questions.
func newChatCompleter(session *assistant.Session) *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem(".help"),
		readline.PcItem(".clear"),
		readline.PcItem(".history"),
		readline.PcItem(".datasets"),
		readline.PcItem(".suggestions"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	}
	for _, s := range session.Suggestions() {
		items = append(items, readline.PcItem(s.Query))
	}
	return readline.NewPrefixCompleter(items...)
}
