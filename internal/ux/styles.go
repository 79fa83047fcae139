package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles is the palette used for text output.
type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
	OK    lipgloss.Style
	Bad   lipgloss.Style
	Muted lipgloss.Style
}

// NewStyles returns the palette; noColor yields plain text.
func NewStyles(noColor bool) *Styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return &Styles{Title: plain, Label: plain, Value: plain, OK: plain, Bad: plain, Muted: plain}
	}
	return &Styles{
		Title: lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
		Label: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Value: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		OK:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Bad:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Muted: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Field renders one "label: value" line.
func (s *Styles) Field(label string, value any) string {
	return fmt.Sprintf("%s %s\n", s.Label.Render(label+":"), s.Value.Render(fmt.Sprint(value)))
}

// Mark renders a check or a cross.
func (s *Styles) Mark(ok bool) string {
	if ok {
		return s.OK.Render("✓")
	}
	return s.Bad.Render("✗")
}

// Table renders rows as left-aligned columns under a muted header.
func (s *Styles) Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			pad := 0
			if i < len(widths) {
				pad = widths[i] - lipgloss.Width(cell)
			}
			parts[i] = cell + strings.Repeat(" ", pad)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ") + "\n"
	}

	var b strings.Builder
	b.WriteString(s.Muted.Render(strings.TrimRight(line(header), "\n")) + "\n")
	for _, row := range rows {
		b.WriteString(line(row))
	}
	return b.String()
}
