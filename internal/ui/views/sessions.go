package views

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jscyril/soundbridge/api"
	"github.com/jscyril/soundbridge/internal/ui/components"
)

// ClipChosenMsg is sent when a file was picked in the browser
type ClipChosenMsg struct {
	Path string
}

// SessionsView lists live sessions and hosts the clip browser
type SessionsView struct {
	Width       int
	Height      int
	List        components.SessionList
	Browser     components.ClipBrowser
	Browsing    bool
	BorderStyle lipgloss.Style
}

// NewSessionsView creates a new sessions view. accept filters the files the
// browser offers.
func NewSessionsView(width, height int, accept func(string) bool) SessionsView {
	list := components.NewSessionList(height-4, width-6)
	list.Title = "Sessions"

	return SessionsView{
		Width:   width,
		Height:  height,
		List:    list,
		Browser: components.NewClipBrowser("", accept, width, height),
		BorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
	}
}

// SetSessions refreshes the list
func (v *SessionsView) SetSessions(sessions []api.SessionInfo) {
	v.List.SetItems(sessions)
}

// Selected returns the highlighted session
func (v *SessionsView) Selected() (api.SessionInfo, bool) {
	return v.List.SelectedItem()
}

// OpenBrowser switches to the clip browser
func (v *SessionsView) OpenBrowser() {
	v.Browsing = true
	v.Browser.Navigate(v.Browser.CurrentPath)
}

// Update handles keys while the browser is open
func (v SessionsView) Update(msg tea.Msg) (SessionsView, tea.Cmd) {
	if !v.Browsing {
		return v, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			v.Browsing = false
			return v, nil
		case "enter":
			if path := v.Browser.EnterSelected(); path != "" {
				v.Browsing = false
				return v, func() tea.Msg { return ClipChosenMsg{Path: path} }
			}
			return v, nil
		}
	}

	var cmd tea.Cmd
	v.Browser, cmd = v.Browser.Update(msg)
	return v, cmd
}

// View renders the list or the browser
func (v SessionsView) View() string {
	if v.Browsing {
		return v.Browser.View()
	}
	return v.BorderStyle.Width(v.Width - 4).Render(v.List.View())
}
