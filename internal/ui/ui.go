// Package ui provides terminal rendering helpers for the CLI.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// colorEnabled reports whether stdout is a terminal with color support.
func colorEnabled() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled() {
		return s
	}
	return style.Render(s)
}

// RenderAccent renders s in the accent style.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderPass renders s as a success marker.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn renders s as a warning marker.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail renders s as a failure marker.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderDim renders s de-emphasized.
func RenderDim(s string) string { return render(dimStyle, s) }
