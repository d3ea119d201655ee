package components

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jscyril/soundbridge/api"
)

// SessionList is a scrollable list of live sessions
type SessionList struct {
	Items         []api.SessionInfo
	Selected      int
	Height        int
	Width         int
	Offset        int
	Title         string
	SelectedStyle lipgloss.Style
	NormalStyle   lipgloss.Style
	TitleStyle    lipgloss.Style
}

// NewSessionList creates a new session list
func NewSessionList(height, width int) SessionList {
	return SessionList{
		Height: height,
		Width:  width,
		SelectedStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Bold(true).
			Padding(0, 1),
		NormalStyle: lipgloss.NewStyle().
			Padding(0, 1),
		TitleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginBottom(1),
	}
}

// SetItems replaces the list, keeping the selection on the same handle
// when it is still present.
func (l *SessionList) SetItems(items []api.SessionInfo) {
	selected, hadSelection := l.SelectedItem()
	l.Items = items

	l.Selected = 0
	if hadSelection {
		for i, item := range items {
			if item.Handle == selected.Handle {
				l.Selected = i
				break
			}
		}
	}
	if l.Selected >= len(items) && len(items) > 0 {
		l.Selected = len(items) - 1
	}
	l.ensureVisible()
}

// MoveUp moves selection up
func (l *SessionList) MoveUp() {
	if l.Selected > 0 {
		l.Selected--
		l.ensureVisible()
	}
}

// MoveDown moves selection down
func (l *SessionList) MoveDown() {
	if l.Selected < len(l.Items)-1 {
		l.Selected++
		l.ensureVisible()
	}
}

func (l *SessionList) visibleHeight() int {
	h := l.Height - 2
	if h < 1 {
		return 1
	}
	return h
}

// ensureVisible ensures the selected item is visible
func (l *SessionList) ensureVisible() {
	visible := l.visibleHeight()
	if l.Selected < l.Offset {
		l.Offset = l.Selected
	} else if l.Selected >= l.Offset+visible {
		l.Offset = l.Selected - visible + 1
	}
}

// SelectedItem returns the selected session
func (l *SessionList) SelectedItem() (api.SessionInfo, bool) {
	if l.Selected >= 0 && l.Selected < len(l.Items) {
		return l.Items[l.Selected], true
	}
	return api.SessionInfo{}, false
}

// View renders the session list
func (l SessionList) View() string {
	var sb strings.Builder

	if l.Title != "" {
		sb.WriteString(l.TitleStyle.Render(l.Title))
		sb.WriteString("\n")
	}

	if len(l.Items) == 0 {
		sb.WriteString(l.NormalStyle.Render("No sessions"))
		return sb.String()
	}

	end := l.Offset + l.visibleHeight()
	if end > len(l.Items) {
		end = len(l.Items)
	}

	for i := l.Offset; i < end; i++ {
		item := l.Items[i]
		line := fmt.Sprintf("#%-4d %s %-9s %s", item.Handle, StatusIcon(item.Status), item.Status, truncate(filepath.Base(item.Source), 30))

		if l.Width > 5 && len(line) > l.Width-2 {
			line = line[:l.Width-5] + "..."
		}

		if i == l.Selected {
			sb.WriteString(l.SelectedStyle.Render(line))
		} else {
			sb.WriteString(l.NormalStyle.Render(line))
		}
		if i < end-1 {
			sb.WriteString("\n")
		}
	}

	if len(l.Items) > l.visibleHeight() {
		sb.WriteString("\n")
		sb.WriteString(l.NormalStyle.Render(fmt.Sprintf("  [%d/%d]", l.Selected+1, len(l.Items))))
	}

	return sb.String()
}

// StatusIcon returns the glyph shown for a session status
func StatusIcon(status api.Status) string {
	switch status {
	case api.StatusPlaying:
		return "▶"
	case api.StatusPaused:
		return "⏸"
	case api.StatusCreated:
		return "…"
	default:
		return "⏹"
	}
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
