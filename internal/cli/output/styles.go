package output

import "github.com/charmbracelet/lipgloss"

// Brand colors used across terminal output.
const (
	ColorPrimary = lipgloss.Color("#0B5D3B")
	ColorSuccess = lipgloss.Color("#28A745")
	ColorWarning = lipgloss.Color("#D97706")
	ColorError   = lipgloss.Color("#DC2626")
	ColorMuted   = lipgloss.Color("#6B7280")
)

// Styles are the lipgloss styles of one renderer.
type Styles struct {
	Header  lipgloss.Style
	Bold    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Prompt  lipgloss.Style
}

// NewStyles builds the styles for r.
func NewStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header:  r.NewStyle().Bold(true).Foreground(ColorPrimary),
		Bold:    r.NewStyle().Bold(true),
		Success: r.NewStyle().Foreground(ColorSuccess),
		Warning: r.NewStyle().Foreground(ColorWarning),
		Error:   r.NewStyle().Bold(true).Foreground(ColorError),
		Muted:   r.NewStyle().Foreground(ColorMuted),
		Prompt:  r.NewStyle().Bold(true).Foreground(ColorPrimary),
	}
}
