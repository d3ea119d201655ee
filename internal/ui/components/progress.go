package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ProgressBar shows a playhead within a clip
type ProgressBar struct {
	Width       int
	Current     time.Duration
	Total       time.Duration
	Looping     bool
	BarChar     string
	EmptyChar   string
	Style       lipgloss.Style
	FilledStyle lipgloss.Style
	EmptyStyle  lipgloss.Style
}

// NewProgressBar creates a new progress bar
func NewProgressBar(width int) ProgressBar {
	return ProgressBar{
		Width:       width,
		BarChar:     "█",
		EmptyChar:   "░",
		Style:       lipgloss.NewStyle(),
		FilledStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("212")),
		EmptyStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// SetProgress sets the current position
func (p *ProgressBar) SetProgress(current, total time.Duration) {
	p.Current = current
	p.Total = total
}

// Fraction returns how much of the clip has played, in [0, 1]
func (p ProgressBar) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Current) / float64(p.Total)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// View renders the progress bar
func (p ProgressBar) View() string {
	var sb strings.Builder

	// Room for "00:00.0/00:00.0 ↻"
	barWidth := p.Width - 18
	if barWidth < 10 {
		barWidth = 10
	}

	filled := int(float64(barWidth) * p.Fraction())
	sb.WriteString(p.FilledStyle.Render(strings.Repeat(p.BarChar, filled)))
	sb.WriteString(p.EmptyStyle.Render(strings.Repeat(p.EmptyChar, barWidth-filled)))

	sb.WriteString(" ")
	sb.WriteString(FormatDuration(p.Current))
	sb.WriteString("/")
	sb.WriteString(FormatDuration(p.Total))
	if p.Looping {
		sb.WriteString(" ↻")
	}

	return p.Style.Render(sb.String())
}

// FormatDuration formats a duration as MM:SS.t, clips being short
func FormatDuration(d time.Duration) string {
	d = d.Round(100 * time.Millisecond)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	tenths := (d % time.Second) / (100 * time.Millisecond)
	return fmt.Sprintf("%02d:%02d.%d", m, s, tenths)
}
