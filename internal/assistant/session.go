package assistant

import (
	"context"
	"errors"
	"log/slog"

	"github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/conversation"
	"github.com/leapstack-labs/leapinsight/internal/fault"
)

// ClearedMessage confirms a cleared conversation.
const ClearedMessage = "Conversation memory has been cleared. You can start a new conversation."

// ErrNoArchive is returned by History when no archive is configured.
var ErrNoArchive = errors.New("conversation archive is not configured")

// Session answers questions in the context of per-session memory.
type Session struct {
	assistant *Assistant
	registry  *conversation.Registry
	archive   *conversation.Archive
	ui        config.UIConfig
	logger    *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithArchive records every exchange in archive.
func WithArchive(archive *conversation.Archive) SessionOption {
	return func(s *Session) { s.archive = archive }
}

// WithUI sets the welcome text and suggestions.
func WithUI(ui config.UIConfig) SessionOption {
	return func(s *Session) { s.ui = ui }
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession creates a session layer over a and registry.
func NewSession(a *Assistant, registry *conversation.Registry, opts ...SessionOption) *Session {
	s := &Session{
		assistant: a,
		registry:  registry,
		ui:        config.Defaults().UI,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask answers query using the session's memory, then records the exchange.
func (s *Session) Ask(ctx context.Context, sessionID, query string) Reply {
	return s.AskWithHistory(ctx, sessionID, query, nil)
}

// AskWithHistory is Ask with caller-supplied history. A nil history uses
// the session's memory.
func (s *Session) AskWithHistory(ctx context.Context, sessionID, query string, history []conversation.Message) Reply {
	log := s.registry.Get(sessionID)
	if history == nil {
		history = log.All()
	}
	reply := s.assistant.Respond(ctx, query, history)
	if reply.Fault == fault.KindInvalidQuery || reply.Fault == fault.KindQueryTooLong {
		return reply
	}

	log.AppendExchange(query, reply.HTML)
	if s.archive != nil {
		// The caller's context may already be done; the archive write is
		// independent of it.
		if _, err := s.archive.Record(context.WithoutCancel(ctx), sessionID, query, reply.HTML, reply.Outcome()); err != nil {
			s.logger.Error("failed to archive exchange", "session", sessionID, "error", err)
		}
	}
	return reply
}

// ClearConversation starts the session over with empty memory.
func (s *Session) ClearConversation(sessionID string) string {
	s.registry.Clear(sessionID)
	return ClearedMessage
}

// ListConversation returns the session's remembered messages, oldest first.
func (s *Session) ListConversation(sessionID string) []conversation.Message {
	return s.registry.Get(sessionID).All()
}

// History returns up to limit archived exchanges for sessionID, or for
// every session when sessionID is empty.
func (s *Session) History(ctx context.Context, sessionID string, limit int) ([]conversation.Exchange, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	return s.archive.Recent(ctx, sessionID, limit)
}

// Welcome returns the greeting shown to new users.
func (s *Session) Welcome() string { return s.ui.Welcome }

// Suggestions returns the canned starter questions.
func (s *Session) Suggestions() []config.Suggestion {
	return append([]config.Suggestion(nil), s.ui.Suggestions...)
}

// Registry returns the session memory registry.
func (s *Session) Registry() *conversation.Registry { return s.registry }
