package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// StatusBox renders a titled box with key-value fields.
func StatusBox(title string, fields [][2]string) string {
	if !isTTY() {
		return statusBoxPlain(title, fields)
	}

	var sb strings.Builder
	sb.WriteString(StyleHeader.Render(title))
	sb.WriteString("\n")
	for _, f := range fields {
		sb.WriteString(StyleLabel.Render(f[0]) + StyleValue.Render(f[1]) + "\n")
	}
	return StyleBox.Render(strings.TrimRight(sb.String(), "\n"))
}

func statusBoxPlain(title string, fields [][2]string) string {
	var sb strings.Builder
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("=", len(title)) + "\n")
	for _, f := range fields {
		fmt.Fprintf(&sb, "%-16s %s\n", f[0]+":", f[1])
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RenderTable renders a styled table with headers and rows.
func RenderTable(headers []string, rows [][]string) string {
	if !isTTY() {
		return renderTablePlain(headers, rows)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorDim)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return StyleTableHeader
			}
			return StyleTableRow
		}).
		Headers(headers...).
		Rows(rows...)

	return t.String()
}

func renderTablePlain(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i < len(widths) {
				fmt.Fprintf(&sb, "%-*s  ", widths[i], cell)
			}
		}
		sb.WriteString("\n")
	}
	writeRow(headers)
	for i, w := range widths {
		sb.WriteString(strings.Repeat("-", w))
		if i < len(widths)-1 {
			sb.WriteString("  ")
		}
	}
	sb.WriteString("\n")
	for _, row := range rows {
		writeRow(row)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Success prints a success message.
func Success(w io.Writer, msg string) {
	if isTTY() {
		fmt.Fprintln(w, StyleSuccess.Render("  "+msg))
	} else {
		fmt.Fprintln(w, "[OK] "+msg)
	}
}

// Warning prints a warning message.
func Warning(w io.Writer, msg string) {
	if isTTY() {
		fmt.Fprintln(w, StyleWarning.Render("  "+msg))
	} else {
		fmt.Fprintln(w, "[WARN] "+msg)
	}
}

// Info prints an informational message.
func Info(w io.Writer, msg string) {
	if isTTY() {
		fmt.Fprintln(w, StyleInfo.Render("  "+msg))
	} else {
		fmt.Fprintln(w, "[INFO] "+msg)
	}
}

// Error prints an error message.
func Error(w io.Writer, msg string) {
	if isTTY() {
		fmt.Fprintln(w, StyleError.Render("  "+msg))
	} else {
		fmt.Fprintln(w, "[ERROR] "+msg)
	}
}

// WithSpinner runs fn while showing a spinner with the given message.
func WithSpinner(msg string, fn func() error) error {
	if !isTTY() {
		return fn()
	}

	var fnErr error
	err := spinner.New().
		Title(msg).
		Action(func() {
			fnErr = fn()
		}).
		Run()
	if err != nil {
		return err
	}
	return fnErr
}

// Confirm asks a yes/no question. Without a terminal it returns def.
func Confirm(title string, def bool) (bool, error) {
	if !isInteractive() {
		return def, nil
	}
	ok := def
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}
