package output

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette. One accent color, everything else muted.
const (
	colorCyan     = "86"  // Primary accent
	colorWhite    = "255" // Headers
	colorGray     = "245" // Secondary text, labels
	colorDarkGray = "238" // Separators
	colorRed      = "196" // Errors
	colorYellow   = "220" // Warnings
)

// Styles holds the render styles for CLI output.
type Styles struct {
	Header  lipgloss.Style
	Path    lipgloss.Style
	Score   lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorWhite)),
		Path:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorCyan)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorDarkGray)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
	}
}

// NoColorStyles returns unstyled components for plain output.
func NoColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Path:    lipgloss.NewStyle(),
		Score:   lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
	}
}

// StylesFor picks colored or plain styles based on whether out is a
// terminal. NO_COLOR always disables color.
func StylesFor(out io.Writer) Styles {
	if os.Getenv("NO_COLOR") != "" {
		return NoColorStyles()
	}
	if f, ok := out.(*os.File); ok {
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			return DefaultStyles()
		}
	}
	return NoColorStyles()
}
