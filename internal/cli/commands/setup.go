package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapinsight/internal/agent"
	"github.com/leapstack-labs/leapinsight/internal/answer"
	"github.com/leapstack-labs/leapinsight/internal/assistant"
	"github.com/leapstack-labs/leapinsight/internal/cli/config"
	"github.com/leapstack-labs/leapinsight/internal/cli/output"
	intconfig "github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/conversation"
	"github.com/leapstack-labs/leapinsight/internal/dataset"
	"github.com/leapstack-labs/leapinsight/internal/llm"
	"github.com/leapstack-labs/leapinsight/internal/prompt"
	"github.com/leapstack-labs/leapinsight/internal/sandbox"
	"github.com/leapstack-labs/leapinsight/internal/sqltool"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Settings *intconfig.Settings
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded settings.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	s := config.GetCurrentSettings()
	if s == nil {
		s = intconfig.Defaults()
	}
	mode, err := outputMode(cmd)
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Settings: s,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}, nil
}

func outputMode(cmd *cobra.Command) (output.Mode, error) {
	f := cmd.Flags().Lookup("output")
	if f == nil {
		return output.ModeAuto, nil
	}
	return output.ParseMode(f.Value.String())
}

// Data is the dataset side of the assistant: the catalog, the accessor and
// the evaluator reading through it.
type Data struct {
	Catalog   *dataset.Catalog
	Accessor  *dataset.Accessor
	Cache     *dataset.Cache
	Evaluator *sandbox.Evaluator

	closers []io.Closer
}

// OpenData builds the dataset side from s.
func OpenData(ctx context.Context, s *intconfig.Settings, logger *slog.Logger) (*Data, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := config.ValidateDataDir(s); err != nil {
		return nil, err
	}
	catalog, err := dataset.NewCatalog(s.Data.Dir, s.Datasets)
	if err != nil {
		return nil, fmt.Errorf("failed to build dataset catalog: %w", err)
	}

	d := &Data{Catalog: catalog}
	var loader dataset.Loader = dataset.NewCSVLoader()
	if s.Data.Loader == intconfig.LoaderDuckDB {
		dl, err := dataset.NewDuckDBLoader(ctx)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, dl)
		loader = dl
	}

	opts := []dataset.Option{dataset.WithLogger(logger)}
	if s.Data.Cache {
		d.Cache = dataset.NewCache(logger)
		opts = append(opts, dataset.WithCache(d.Cache))
	}
	d.Accessor = dataset.NewAccessor(catalog, loader, opts...)
	d.Evaluator = sandbox.FromSettings(d.Accessor, s, sandbox.WithLogger(logger))
	return d, nil
}

// Close releases the loaders.
func (d *Data) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i].Close())
	}
	d.closers = nil
	return errors.Join(errs...)
}

// App is the fully wired assistant.
type App struct {
	*Data
	Settings  *intconfig.Settings
	Completer llm.Completer
	SQL       *sqltool.Tool
	Archive   *conversation.Archive
	Assistant *assistant.Assistant
	Session   *assistant.Session
}

// AppOption adjusts how an App is wired.
type AppOption func(*appOptions)

type appOptions struct {
	completer llm.Completer
}

// WithCompleter replaces the completer selected by the settings.
func WithCompleter(c llm.Completer) AppOption {
	return func(o *appOptions) { o.completer = c }
}

// OpenApp wires the assistant described by s. Close releases everything it
// opened.
func OpenApp(ctx context.Context, s *intconfig.Settings, logger *slog.Logger, opts ...AppOption) (app *App, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	data, err := OpenData(ctx, s, logger)
	if err != nil {
		return nil, err
	}
	app = &App{Data: data, Settings: s, Completer: o.completer}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	if app.Completer == nil {
		if app.Completer, err = llm.FromSettings(s, logger); err != nil {
			return nil, fmt.Errorf("failed to create llm provider: %w", err)
		}
	}

	tools := []agent.Tool{agent.NewCodeTool(data.Evaluator)}
	if s.Tools.SQL {
		sqlOpts := append(sqltool.SettingsOptions(s), sqltool.WithLogger(logger))
		if app.SQL, err = sqltool.Open(ctx, data.Catalog, sqlOpts...); err != nil {
			return nil, fmt.Errorf("failed to open sql tool: %w", err)
		}
		data.closers = append(data.closers, app.SQL)
		tools = append(tools, app.SQL)
	}

	builder, err := prompt.FromSettings(s)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt template: %w", err)
	}
	controller := agent.FromSettings(app.Completer, tools, s,
		agent.WithPrompt(builder),
		agent.WithDatasets(data.Catalog.Describe()),
		agent.WithLogger(logger),
	)
	app.Assistant = assistant.FromSettings(controller, s,
		assistant.WithExtractor(answer.New(s.Brand)),
		assistant.WithLogger(logger),
	)

	sessionOpts := []assistant.SessionOption{
		assistant.WithUI(s.UI),
		assistant.WithSessionLogger(logger),
	}
	if s.Conversation.Archive != "" {
		if app.Archive, err = openArchive(s.Conversation.Archive, logger); err != nil {
			return nil, err
		}
		data.closers = append(data.closers, app.Archive)
		sessionOpts = append(sessionOpts, assistant.WithArchive(app.Archive))
	}
	registry := conversation.RegistryFromSettings(s, conversation.WithLogger(logger))
	app.Session = assistant.NewSession(app.Assistant, registry, sessionOpts...)
	return app, nil
}

func openArchive(path string, logger *slog.Logger) (*conversation.Archive, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}
	a, err := conversation.OpenArchive(path, conversation.WithArchiveLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation archive: %w", err)
	}
	return a, nil
}
