// Package llm provides the text-completion collaborators that drive the
// reasoning loop.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapinsight/internal/config"
)

// Request is a single text-completion request.
type Request struct {
	// System is the system prompt, sent separately when the backend supports it.
	System string
	// Prompt is the full prompt including the running transcript.
	Prompt string
	// Stop lists sequences at which generation halts.
	Stop        []string
	Temperature float64
	// Model overrides the client's default model.
	Model string
}

// Completer is the interface every LLM provider implements.
type Completer interface {
	// Complete returns the text generated for req, without the stop sequence.
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Pinger is implemented by providers that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FromSettings builds the provider selected by s.LLM.
func FromSettings(s *config.Settings, logger *slog.Logger) (Completer, error) {
	switch s.LLM.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(s.LLM.URL,
			WithModel(s.LLM.Model),
			WithTimeout(s.LLM.Timeout),
			WithLogger(logger),
		), nil
	case config.ProviderScripted:
		sc, err := LoadScript(s.LLM.Script)
		if err != nil {
			return nil, err
		}
		return sc, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", s.LLM.Provider)
	}
}
