// Package assistant is the single entry point that turns a question into a
// displayable answer fragment.
package assistant

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/leapstack-labs/leapinsight/internal/agent"
	"github.com/leapstack-labs/leapinsight/internal/answer"
	"github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/leapstack-labs/leapinsight/internal/conversation"
	"github.com/leapstack-labs/leapinsight/internal/fault"
	"github.com/leapstack-labs/leapinsight/internal/prompt"
)

// Reply is the outcome of one question.
type Reply struct {
	HTML   string        `json:"response"`
	Source answer.Source `json:"source,omitempty"`
	Tone   fault.Tone    `json:"tone"`
	State  agent.State   `json:"state,omitempty"`
	Fault  fault.Kind    `json:"fault,omitempty"`
	Cycles int           `json:"cycles"`
	Took   time.Duration `json:"took"`
	At     time.Time     `json:"timestamp"`
}

// Outcome summarizes the reply for logs and the archive.
func (r Reply) Outcome() string {
	if r.Fault != "" {
		return string(r.Fault)
	}
	return string(r.Source)
}

// Assistant answers questions.
type Assistant struct {
	controller     *agent.Controller
	extractor      *answer.Extractor
	maxQueryLength int
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithExtractor sets the answer extractor.
func WithExtractor(e *answer.Extractor) Option {
	return func(a *Assistant) { a.extractor = e }
}

// WithMaxQueryLength bounds accepted questions, in characters.
func WithMaxQueryLength(n int) Option {
	return func(a *Assistant) { a.maxQueryLength = n }
}

// WithClock sets the clock stamped on replies.
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) { a.now = now }
}

// WithLogger sets the assistant logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an assistant driving controller.
func New(controller *agent.Controller, opts ...Option) *Assistant {
	a := &Assistant{
		controller:     controller,
		extractor:      answer.New(config.Defaults().Brand),
		maxQueryLength: config.DefaultMaxQueryLength,
		now:            time.Now,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FromSettings creates an assistant configured by s.
func FromSettings(controller *agent.Controller, s *config.Settings, opts ...Option) *Assistant {
	base := []Option{
		WithExtractor(answer.New(s.Brand)),
		WithMaxQueryLength(s.Assistant.MaxQueryLength),
	}
	return New(controller, append(base, opts...)...)
}

// Answer returns the answer fragment for query. It never fails.
func (a *Assistant) Answer(ctx context.Context, query string, history []conversation.Message) string {
	return a.Respond(ctx, query, history).HTML
}

// Respond answers query and reports how the answer was reached.
func (a *Assistant) Respond(ctx context.Context, query string, history []conversation.Message) Reply {
	start := a.now()
	reply := a.respond(ctx, query, history)
	reply.At = a.now()
	reply.Took = reply.At.Sub(start)
	a.logger.Info("answered question",
		"outcome", reply.Outcome(),
		"cycles", reply.Cycles,
		"took", reply.Took,
	)
	return reply
}

func (a *Assistant) respond(ctx context.Context, query string, history []conversation.Message) Reply {
	query = strings.TrimSpace(query)
	if query == "" {
		return a.faultReply(fault.KindInvalidQuery)
	}
	if a.maxQueryLength > 0 && utf8.RuneCountInString(query) > a.maxQueryLength {
		return a.faultReply(fault.KindQueryTooLong)
	}

	res := a.controller.Run(ctx, query, Turns(history))
	reply := Reply{State: res.State, Cycles: res.Cycles}

	switch {
	case res.Answered():
		fa := a.extractor.Resolve(a.extractor.Extract(res.Final), res.Observation)
		if len(fa.Unresolved) > 0 {
			a.logger.Warn("answer left placeholders unresolved", "names", strings.Join(fa.Unresolved, ","))
		}
		reply.HTML, reply.Source, reply.Tone = fa.HTML, fa.Source, fa.Tone
		if fa.Source == answer.SourceFallback || len(fa.Unresolved) > 0 {
			reply.Fault = fault.KindParse
		}
	case res.Reason == fault.KindParse && res.Final != "":
		// The model answered without the marker; salvage visible markup.
		fa := a.extractor.Extract(res.Final)
		if fa.Source == answer.SourceMarker || fa.Source == answer.SourceTagSpan {
			fa = a.extractor.Resolve(fa, res.Observation)
			reply.HTML, reply.Source, reply.Tone = fa.HTML, fa.Source, fa.Tone
			break
		}
		reply = a.withFault(reply, fault.KindParse)
	default:
		reply = a.withFault(reply, res.Reason)
	}
	return reply
}

func (a *Assistant) faultReply(k fault.Kind) Reply {
	return a.withFault(Reply{}, k)
}

func (a *Assistant) withFault(r Reply, k fault.Kind) Reply {
	if k == "" {
		k = fault.KindParse
	}
	fa := a.extractor.Renderer().Fault(k)
	r.HTML, r.Source, r.Tone, r.Fault = fa.HTML, fa.Source, fa.Tone, k
	return r
}

// Turns converts stored messages into prompt history. Answers are reduced
// to markdown so markup does not crowd the prompt.
func Turns(history []conversation.Message) []prompt.Turn {
	if len(history) == 0 {
		return nil
	}
	out := make([]prompt.Turn, 0, len(history))
	for _, m := range history {
		content := m.Content
		role := "User"
		if m.Role == conversation.RoleAssistant {
			role = "Assistant"
			content = answer.Markdown(content)
		}
		out = append(out, prompt.Turn{Role: role, Content: content})
	}
	return out
}
