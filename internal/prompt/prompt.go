// Package prompt renders the ReAct prompt that seeds every reasoning loop.
//
// The wording lives in a text/template so it can be replaced through
// configuration without touching the controller.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/leapstack-labs/leapinsight/internal/config"
)

//go:embed default.tmpl
var defaultTemplate string

// Tool describes one tool the model may request.
type Tool struct {
	Name        string
	Description string
}

// Turn is one prior conversation message shown to the model.
type Turn struct {
	Role    string
	Content string
}

// Data is the template input.
type Data struct {
	Brand         config.BrandConfig
	Title         string
	Tools         []Tool
	Datasets      string
	History       []Turn
	Question      string
	MaxIterations int
	Now           time.Time
}

// ToolName returns the primary tool, used by the worked example.
func (d Data) ToolName() string {
	if len(d.Tools) == 0 {
		return ""
	}
	return d.Tools[0].Name
}

// ToolNames returns the comma-separated tool names.
func (d Data) ToolNames() string {
	names := make([]string, len(d.Tools))
	for i, t := range d.Tools {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}

// Today formats Now as a date.
func (d Data) Today() string {
	if d.Now.IsZero() {
		return time.Now().Format(time.DateOnly)
	}
	return d.Now.Format(time.DateOnly)
}

// Builder renders prompts from a parsed template.
type Builder struct {
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"clip": clip,
}

// Default returns a builder for the embedded template.
func Default() *Builder {
	return &Builder{tmpl: template.Must(parse("default", defaultTemplate))}
}

// Parse builds a builder from template text.
func Parse(name, text string) (*Builder, error) {
	t, err := parse(name, text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %s: %w", name, err)
	}
	return &Builder{tmpl: t}, nil
}

// Load reads a template file.
func Load(path string) (*Builder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt template: %w", err)
	}
	return Parse(path, string(data))
}

// FromSettings returns the configured template, or the embedded one.
func FromSettings(s *config.Settings) (*Builder, error) {
	if s.Assistant.PromptFile == "" {
		return Default(), nil
	}
	return Load(s.Assistant.PromptFile)
}

func parse(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
}

// Render executes the template.
func (b *Builder) Render(d Data) (string, error) {
	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, d); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return sb.String(), nil
}

// clip shortens s to at most n runes.
func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
