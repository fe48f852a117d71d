package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/salineros/internal/events"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// interface Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func (p *Palette) On(text string, bg lipgloss.Color) string {
	return lipgloss.NewStyle().Background(bg).Render(text)
}

func (p *Palette) As(text string, fg lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(fg).Render(text)
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func Title(s string) string { return styles.title.Render(s) }
func OK(s string) string    { return styles.ok.Render(s) }
func Err(s string) string   { return styles.err.Render(s) }
func Warn(s string) string  { return styles.warn.Render(s) }
func Help(s string) string  { return styles.help.Render(s) }

// Outcome colors a catalog edit outcome: synced in green, queued in orange.
func Outcome(outcome, message string) string {
	switch outcome {
	case "synced":
		return OK("✓ " + message)
	case "queued":
		return Warn("⧗ " + message)
	default:
		return message
	}
}

// State colors a coordinator state name.
func State(state string) string {
	switch state {
	case "idle":
		return OK(state)
	case "syncing":
		return Title(state)
	case "backing_off":
		return Warn(state)
	default:
		return state
	}
}

// Event renders a sync lifecycle event as one status line.
func Event(e events.Event) string {
	line := fmt.Sprintf("%s %s", e.At.Local().Format("15:04:05"), e.String())

	switch e.Kind {
	case events.SyncCompleted:
		return OK(line)
	case events.SyncFailed, events.RetriesExhausted, events.OutboxRejected:
		return Err(line)
	case events.SyncConflict, events.RetryScheduled:
		return Warn(line)
	case events.ConnectivityChanged:
		if e.Online {
			return OK(line)
		}
		return Warn(line)
	default:
		return Help(line)
	}
}

// Rule draws a horizontal rule as wide as title, under it.
func Rule(title string) string {
	return Title(title) + "\n" + Help(strings.Repeat("─", max(lipgloss.Width(title), 3)))
}
