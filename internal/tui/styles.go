package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/efebarandurmaz/bbsearch/internal/classify"
)

// Color constants matching the dark terminal theme
const (
	ColorBg      = "#0d1117"
	ColorBlue    = "#58a6ff"
	ColorGreen   = "#3fb950"
	ColorRed     = "#f85149"
	ColorYellow  = "#d29922"
	ColorMagenta = "#bc8cff"
	ColorGray    = "#8b949e"
	ColorText    = "#c9d1d9"
	ColorBright  = "#f0f6fc"
)

// Styles holds all lipgloss styles used by the progress view and the report
type Styles struct {
	// Text styles
	Title   lipgloss.Style
	Heading lipgloss.Style
	Text    lipgloss.Style
	Help    lipgloss.Style

	// Result classes
	HighScore     lipgloss.Style
	Halted        lipgloss.Style
	NonTerminated lipgloss.Style
	Aborted       lipgloss.Style

	// Status badges
	StatusDone      lipgloss.Style
	StatusCancelled lipgloss.Style
}

// DefaultStyles creates the style set for standard output.
func DefaultStyles() *Styles {
	return NewStyles(lipgloss.DefaultRenderer())
}

// NewStyles creates the style set for r. A renderer writing to something
// other than a terminal produces plain text.
func NewStyles(r *lipgloss.Renderer) *Styles {
	bold := func(color string) lipgloss.Style {
		return r.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
	}
	return &Styles{
		Title:   bold(ColorBright),
		Heading: bold(ColorBlue),
		Text:    r.NewStyle().Foreground(lipgloss.Color(ColorText)),
		Help: r.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Italic(true),

		HighScore:     bold(ColorGreen),
		Halted:        bold(ColorYellow),
		NonTerminated: bold(ColorMagenta),
		Aborted:       bold(ColorRed),

		StatusDone: r.NewStyle().
			Background(lipgloss.Color(ColorGreen)).
			Foreground(lipgloss.Color(ColorBg)).
			Padding(0, 1).
			Bold(true),

		StatusCancelled: r.NewStyle().
			Background(lipgloss.Color(ColorRed)).
			Foreground(lipgloss.Color(ColorBg)).
			Padding(0, 1).
			Bold(true),
	}
}

// Category returns the style a category's counts are printed in.
// Green for the high score, yellow for other halts, red for machines cut
// off by the step bound and magenta for the rest.
func (s *Styles) Category(c classify.Category) lipgloss.Style {
	switch c {
	case classify.HighScore:
		return s.HighScore
	case classify.HaltedOther, classify.HaltedFirstStep:
		return s.Halted
	case classify.StepBoundExceeded:
		return s.Aborted
	default:
		return s.NonTerminated
	}
}
