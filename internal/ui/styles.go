// Package ui renders trackbridge output for terminals. Colors follow the
// Ayu palette and adapt to light and dark backgrounds; icons fall back to
// ASCII when the output is not a terminal.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ayu palette, https://terminalcolors.com/themes/ayu/
var (
	ayuGreen  = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ayuYellow = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ayuRed    = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	ayuGray   = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ayuBlue   = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

// Status is the outcome a line of output reports.
type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
	StatusSkip
)

type statusLook struct {
	style lipgloss.Style
	icon  string
	ascii string
}

var looks = map[Status]statusLook{
	StatusOK:   {lipgloss.NewStyle().Foreground(ayuGreen), "✓", "+"},
	StatusWarn: {lipgloss.NewStyle().Foreground(ayuYellow), "⚠", "!"},
	StatusFail: {lipgloss.NewStyle().Foreground(ayuRed), "✗", "x"},
	StatusSkip: {lipgloss.NewStyle().Foreground(ayuGray), "-", "-"},
}

var (
	mutedStyle   = lipgloss.NewStyle().Foreground(ayuGray)
	accentStyle  = lipgloss.NewStyle().Foreground(ayuBlue)
	headingStyle = accentStyle.Bold(true)
)

// Tree characters for detail lines under an entry.
const (
	TreeLast   = "└─ "
	TreeIndent = "  "
)

const rule = "──────────────────────────────────────────"

// Render colors text for the status.
func (s Status) Render(text string) string {
	return looks[s].style.Render(text)
}

// Icon returns the colored status icon, or its ASCII form when emoji are off.
func (s Status) Icon() string {
	l := looks[s]
	if !ShouldUseEmoji() {
		return l.ascii
	}
	return l.style.Render(l.icon)
}

// Line prefixes text with the icon and colors it.
func (s Status) Line(text string) string {
	return s.Icon() + " " + s.Render(text)
}

// RenderMuted renders secondary text in gray.
func RenderMuted(s string) string {
	return mutedStyle.Render(s)
}

// RenderAccent renders text in the accent blue.
func RenderAccent(s string) string {
	return accentStyle.Render(s)
}

// Heading renders an uppercase section title with a rule under it.
func Heading(title string) string {
	return headingStyle.Render(strings.ToUpper(title)) + "\n" + mutedStyle.Render(rule)
}
