// Package output renders command results for terminals, pipes and scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Mode selects how results are written.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Modes lists the accepted --output values.
var Modes = []string{string(ModeAuto), string(ModeText), string(ModeMarkdown), string(ModeJSON)}

// ParseMode validates s. Empty selects ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeText, ModeMarkdown, ModeJSON:
		return m, nil
	}
	return ModeAuto, fmt.Errorf("unknown output format %q (valid: %s)", s, strings.Join(Modes, ", "))
}

// Renderer writes results in the selected mode.
type Renderer struct {
	out    io.Writer
	err    io.Writer
	mode   Mode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer. ModeAuto resolves to ModeText on a
// terminal and ModeMarkdown otherwise.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	tty := IsTerminal(out)
	lr := lipgloss.NewRenderer(out)
	if tty {
		lr.SetColorProfile(termenv.NewOutput(out).EnvColorProfile())
	} else {
		lr.SetColorProfile(termenv.Ascii)
	}
	if mode == "" || mode == ModeAuto {
		mode = ModeMarkdown
		if tty {
			mode = ModeText
		}
	}
	return &Renderer{out: out, err: errOut, mode: mode, isTTY: tty, styles: NewStyles(lr)}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Mode returns the effective mode.
func (r *Renderer) Mode() Mode { return r.mode }

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Styles returns the renderer's styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Out returns the result writer.
func (r *Renderer) Out() io.Writer { return r.out }

// Println writes a line to the result writer.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text to the result writer.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Warn writes a styled warning to the error writer.
func (r *Renderer) Warn(format string, a ...any) {
	_, _ = fmt.Fprintln(r.err, r.styles.Warning.Render(fmt.Sprintf(format, a...)))
}

// Muted writes dimmed secondary text to the result writer.
func (r *Renderer) Muted(format string, a ...any) {
	_, _ = fmt.Fprintln(r.out, r.styles.Muted.Render(fmt.Sprintf(format, a...)))
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Markdown writes markdown text. In text mode headings and emphasis are
// styled; otherwise the markdown is written unchanged.
func (r *Renderer) Markdown(md string) {
	if r.mode != ModeText {
		r.Println(md)
		return
	}
	for _, line := range strings.Split(md, "\n") {
		r.Println(r.styleLine(line))
	}
}

func (r *Renderer) styleLine(line string) string {
	trimmed := strings.TrimLeft(line, "#")
	if trimmed != line && strings.HasPrefix(trimmed, " ") {
		return r.styles.Header.Render(strings.TrimSpace(trimmed))
	}
	s := r.styles
	return emphasis(line, "**", func(x string) string { return s.Bold.Render(x) })
}

// emphasis re-renders text between pairs of marker.
func emphasis(line, marker string, render func(string) string) string {
	parts := strings.Split(line, marker)
	if len(parts) < 3 {
		return line
	}
	var b strings.Builder
	for i, p := range parts {
		switch {
		case i%2 == 1 && i < len(parts)-1:
			b.WriteString(render(p))
		case i%2 == 1:
			b.WriteString(marker + p)
		default:
			b.WriteString(p)
		}
	}
	return b.String()
}

// FormatHeader formats a markdown header at level.
func FormatHeader(level int, text string) string {
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue formats a markdown key-value line.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("**%s:** %s", key, value)
}
