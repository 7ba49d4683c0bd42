package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/leapinsight/internal/server"
	"github.com/spf13/cobra"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Host string
	Port int
}

// NewServeCommand creates the serve command.
func NewServeCommand(version string) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant over HTTP",
		Long: `Start the HTTP API. Each browser session gets its own conversation
memory, and cached datasets are refreshed when files in the data
directory change.`,
		Example: `  leapinsight serve
  leapinsight serve --port 8080`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, version, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "Host to bind (default: server.host)")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "Port to listen on (default: server.port)")

	return cmd
}

func runServe(cmd *cobra.Command, version string, opts *ServeOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	s := cc.Settings
	if cmd.Flags().Changed("host") {
		s.Server.Host = opts.Host
	}
	if cmd.Flags().Changed("port") {
		s.Server.Port = opts.Port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := OpenApp(ctx, s, cc.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	secret := s.Server.SessionSecret
	if secret == "" {
		if secret, err = randomSecret(); err != nil {
			return err
		}
		cc.Logger.Warn("server.session_secret not set; sessions will not survive a restart")
	}

	cfg := server.Config{
		Session:        app.Session,
		Addr:           s.Server.Addr(),
		SessionSecret:  secret,
		SecureCookies:  s.Server.SecureCookies,
		MaxQueryLength: s.Assistant.MaxQueryLength,
		Info: server.Info{
			Name:        s.UI.Title,
			Version:     version,
			Description: s.UI.Description,
		},
		Logger: cc.Logger,
	}
	if s.Data.Watch && app.Cache != nil {
		cfg.Cache = app.Cache
		cfg.DataDir = s.Data.Dir
	}

	cc.Renderer.Println(cc.Renderer.Styles().Success.Render("Serving on http://" + s.Server.Addr()))
	return serve(ctx, server.NewServer(cfg))
}

func serve(ctx context.Context, srv *server.Server) error {
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
