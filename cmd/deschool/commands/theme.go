package commands

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/0xdeschool/deschool-lens/internal/account"
)

// Brand colors
var (
	ColorAccent  = lipgloss.Color("#8b5cf6") // Violet
	ColorSuccess = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#eab308")
	ColorError   = lipgloss.Color("#ef4444")
	ColorInfo    = lipgloss.Color("#3b82f6")
	ColorMuted   = lipgloss.Color("#6b7280")
	ColorDim     = lipgloss.Color("#4b5563")
	ColorWhite   = lipgloss.Color("#f9fafb")
)

// isTTY reports whether stdout is a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// isInteractive reports whether stdin is a terminal we can prompt on.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError)

	StyleInfo = lipgloss.NewStyle().
			Foreground(ColorInfo)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Width(16)

	StyleValue = lipgloss.NewStyle().
			Foreground(ColorWhite)

	StyleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDim).
			Padding(0, 1)

	StyleTableHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorAccent).
				Padding(0, 1)

	StyleTableRow = lipgloss.NewStyle().
			Foreground(ColorWhite).
			Padding(0, 1)
)

// RoleBadge renders a login role as a colored badge.
func RoleBadge(role account.Role) string {
	if !isTTY() {
		return "[" + string(role) + "]"
	}
	bg := ColorMuted
	switch role {
	case account.UserOfCyber:
		bg = ColorInfo
	case account.UserOfDeschool:
		bg = ColorAccent
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#000000")).
		Background(bg).
		Padding(0, 1).
		Bold(true).
		Render(string(role))
}

// Hint renders a dimmed follow-up suggestion.
func Hint(msg string) string {
	if !isTTY() {
		return "  " + msg
	}
	return StyleMuted.Render("  " + msg)
}
