package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by commands. All styles are plain
// when output is not a terminal.
type Styles struct {
	Bold    lipgloss.Style
	Header  lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	StatusCompleted lipgloss.Style
	StatusFailed    lipgloss.Style
	StatusRunning   lipgloss.Style
}

// NewStyles returns the styles for a terminal, or plain styles otherwise.
func NewStyles(color bool) *Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return &Styles{
			Bold: plain, Header: plain, Muted: plain,
			Success: plain, Warning: plain, Error: plain, Info: plain,
			StatusCompleted: plain, StatusFailed: plain, StatusRunning: plain,
		}
	}
	green := lipgloss.Color("2")
	red := lipgloss.Color("1")
	yellow := lipgloss.Color("3")
	return &Styles{
		Bold:            lipgloss.NewStyle().Bold(true),
		Header:          lipgloss.NewStyle().Bold(true).Underline(true),
		Muted:           lipgloss.NewStyle().Faint(true),
		Success:         lipgloss.NewStyle().Foreground(green),
		Warning:         lipgloss.NewStyle().Foreground(yellow),
		Error:           lipgloss.NewStyle().Foreground(red),
		Info:            lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		StatusCompleted: lipgloss.NewStyle().Foreground(green).Bold(true),
		StatusFailed:    lipgloss.NewStyle().Foreground(red).Bold(true),
		StatusRunning:   lipgloss.NewStyle().Foreground(yellow),
	}
}
