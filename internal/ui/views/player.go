package views

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jscyril/soundbridge/api"
	"github.com/jscyril/soundbridge/internal/ui/components"
)

// SessionView shows the state of the selected session
type SessionView struct {
	Width       int
	Height      int
	Info        *api.SessionInfo
	ProgressBar components.ProgressBar

	TitleStyle    lipgloss.Style
	SourceStyle   lipgloss.Style
	StatusStyle   lipgloss.Style
	ControlsStyle lipgloss.Style
	BorderStyle   lipgloss.Style
}

// NewSessionView creates a new session view
func NewSessionView(width, height int) SessionView {
	return SessionView{
		Width:       width,
		Height:      height,
		ProgressBar: components.NewProgressBar(width - 8),
		TitleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		SourceStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true),
		StatusStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true),
		ControlsStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1),
		BorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
	}
}

// SetInfo updates the displayed session; nil clears it
func (v *SessionView) SetInfo(info *api.SessionInfo) {
	v.Info = info
	if info != nil {
		v.ProgressBar.SetProgress(info.Position, info.Duration)
		v.ProgressBar.Looping = info.Looping
	}
}

// View renders the session view
func (v SessionView) View() string {
	var sb strings.Builder

	if v.Info == nil {
		sb.WriteString(v.TitleStyle.Render("No session selected"))
		sb.WriteString("\n\n")
		sb.WriteString(v.ControlsStyle.Render("Press [o] to prepare a clip"))
	} else {
		info := v.Info
		sb.WriteString(v.StatusStyle.Render(components.StatusIcon(info.Status) + " "))
		sb.WriteString(v.TitleStyle.Render(fmt.Sprintf("#%d %s", info.Handle, filepath.Base(info.Source))))
		sb.WriteString("\n")
		sb.WriteString(v.SourceStyle.Render(info.Source))
		sb.WriteString("\n\n")
		sb.WriteString(v.ProgressBar.View())
		sb.WriteString("\n\n")
		sb.WriteString(fmt.Sprintf("L %s %3d%%   R %s %3d%%",
			renderVolumeBar(info.Left), int(info.Left*100+0.5),
			renderVolumeBar(info.Right), int(info.Right*100+0.5)))
	}

	sb.WriteString("\n\n")
	sb.WriteString(v.ControlsStyle.Render(
		"[Space] Play/Pause  [s] Stop  [x] Release  [l] Loop  [+/-] Volume  [←/→] Seek  [o] Open  [q] Quit",
	))

	return v.BorderStyle.Width(v.Width - 4).Render(sb.String())
}

// renderVolumeBar renders a channel gain
func renderVolumeBar(volume float64) string {
	filled := int(volume*10 + 0.5)
	if filled > 10 {
		filled = 10
	}
	if filled < 0 {
		filled = 0
	}

	filledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	return filledStyle.Render(strings.Repeat("●", filled)) + emptyStyle.Render(strings.Repeat("○", 10-filled))
}
