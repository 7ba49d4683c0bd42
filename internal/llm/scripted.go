package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// QuestionMarker introduces the user question in a prompt. The scripted
// provider keys its replies on the text that follows the last marker.
const QuestionMarker = "Question:"

const observationMarker = "\nObservation:"

// ErrScriptExhausted is returned when a script has no step left for a request.
var ErrScriptExhausted = errors.New("script exhausted")

// ErrNoScript is returned when no script matches a request.
var ErrNoScript = errors.New("no script matches the question")

// Script is a canned sequence of completions for one kind of question.
type Script struct {
	// Match is a case-insensitive substring of the question. Empty matches
	// every question.
	Match string `yaml:"match"`
	// Steps are replayed in order, one per reasoning cycle.
	Steps []string `yaml:"steps"`
	// Repeat replays the last step once the others are used up.
	Repeat bool `yaml:"repeat"`
}

type scriptFile struct {
	Scripts []Script `yaml:"scripts"`
}

// Scripted replays completions from scripts. It is stateless across
// requests: the step is derived from the Observations already present in
// the prompt, so concurrent sessions replay independently.
type Scripted struct {
	scripts []Script

	mu       sync.Mutex
	requests []Request
}

// NewScripted creates a scripted provider. Scripts are tried in order.
func NewScripted(scripts ...Script) *Scripted {
	return &Scripted{scripts: scripts}
}

// LoadScript reads a YAML script file.
func LoadScript(path string) (*Scripted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	var f scriptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse script %s: %w", path, err)
	}
	if len(f.Scripts) == 0 {
		return nil, fmt.Errorf("script %s declares no scripts", path)
	}
	for i, s := range f.Scripts {
		if len(s.Steps) == 0 {
			return nil, fmt.Errorf("script %s: entry %d has no steps", path, i)
		}
	}
	return NewScripted(f.Scripts...), nil
}

// Complete returns the next step of the script matching the question.
func (s *Scripted) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	tail := req.Prompt
	if i := strings.LastIndex(tail, QuestionMarker); i >= 0 {
		tail = tail[i+len(QuestionMarker):]
	}
	question, _, _ := strings.Cut(strings.TrimSpace(tail), "\n")
	step := strings.Count(tail, observationMarker)

	for _, sc := range s.scripts {
		if !strings.Contains(strings.ToLower(question), strings.ToLower(sc.Match)) {
			continue
		}
		switch {
		case step < len(sc.Steps):
			return cut(sc.Steps[step], req.Stop), nil
		case sc.Repeat && len(sc.Steps) > 0:
			return cut(sc.Steps[len(sc.Steps)-1], req.Stop), nil
		default:
			return "", fmt.Errorf("%w: %q at step %d", ErrScriptExhausted, sc.Match, step)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNoScript, question)
}

// Requests returns a copy of every request received.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Calls returns the number of requests received.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// cut truncates text at the first stop sequence, as a real backend would.
func cut(text string, stop []string) string {
	end := len(text)
	for _, seq := range stop {
		if seq == "" {
			continue
		}
		if i := strings.Index(text, seq); i >= 0 && i < end {
			end = i
		}
	}
	return text[:end]
}
