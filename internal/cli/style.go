package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)
)

// httpStatusStyle colours an HTTP status code by class.
func httpStatusStyle(code uint16) lipgloss.Style {
	switch {
	case code >= 200 && code < 300:
		return okStyle
	case code >= 300 && code < 400:
		return warnStyle
	default:
		return errorStyle
	}
}

// statusLine writes "label: value" with the label highlighted.
func statusLine(w io.Writer, label string, value string) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label+":"), value)
}
