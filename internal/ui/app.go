// Package ui is a terminal console over the session registry.
package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/jscyril/soundbridge/api"
	"github.com/jscyril/soundbridge/internal/config"
	"github.com/jscyril/soundbridge/internal/ui/views"
)

// FirstConsoleHandle is the first handle the console assigns to clips it
// prepares, kept clear of handles chosen by bridge callers.
const FirstConsoleHandle api.Handle = 1 << 20

const (
	volumeStep = 0.1
	seekStep   = 5 * time.Second
)

// Controller is the part of the registry the console drives
type Controller interface {
	Prepare(ctx context.Context, source string, handle api.Handle) (float64, error)
	Play(handle api.Handle) (<-chan bool, error)
	Pause(handle api.Handle) error
	Stop(handle api.Handle) error
	Release(handle api.Handle) error
	SetVolume(handle api.Handle, left, right float64) error
	SetLooping(handle api.Handle, looping bool) error
	SetCurrentTime(handle api.Handle, seconds float64) error
	Sessions() []api.SessionInfo
}

// Model is the main bubbletea model
type Model struct {
	width  int
	height int

	sessionView  views.SessionView
	sessionsView views.SessionsView

	ctrl       Controller
	events     <-chan api.SessionEvent
	keys       config.KeyMap
	logger     *zap.SugaredLogger
	nextHandle api.Handle

	ctx    context.Context
	status string
	err    error

	headerStyle lipgloss.Style
	statusStyle lipgloss.Style
	errorStyle  lipgloss.Style
}

// TickMsg is sent periodically to refresh positions
type TickMsg time.Time

// EventMsg carries a session event from the bus
type EventMsg api.SessionEvent

// PreparedMsg reports the outcome of a console prepare
type PreparedMsg struct {
	Handle   api.Handle
	Duration float64
	Err      error
}

// PlayResultMsg reports how a console play ended
type PlayResultMsg struct {
	Handle  api.Handle
	Success bool
}

// NewModel creates the console. events may be nil.
func NewModel(ctx context.Context, ctrl Controller, events <-chan api.SessionEvent, keys config.KeyMap, accept func(string) bool, logger *zap.SugaredLogger) Model {
	m := Model{
		width:        80,
		height:       24,
		ctrl:         ctrl,
		events:       events,
		keys:         keys,
		logger:       logger.Named("console"),
		nextHandle:   FirstConsoleHandle,
		ctx:          ctx,
		sessionView:  views.NewSessionView(80, 10),
		sessionsView: views.NewSessionsView(80, 12, accept),
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginBottom(1),
		statusStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
	}
	m.refresh()
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.listenForEvents())
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// listenForEvents waits for the next session event
func (m Model) listenForEvents() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return EventMsg(event)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateViewSizes()

	case TickMsg:
		m.refresh()
		cmds = append(cmds, tickCmd())

	case EventMsg:
		m.status = fmt.Sprintf("#%d %s", msg.Handle, msg.Type)
		if msg.Error != "" {
			m.status += ": " + msg.Error
		}
		m.refresh()
		cmds = append(cmds, m.listenForEvents())

	case PreparedMsg:
		if msg.Err != nil {
			m.err = msg.Err
		} else {
			m.err = nil
			m.status = fmt.Sprintf("#%d prepared (%.1fs)", msg.Handle, msg.Duration)
		}
		m.refresh()

	case PlayResultMsg:
		if msg.Success {
			m.status = fmt.Sprintf("#%d finished", msg.Handle)
		} else {
			m.status = fmt.Sprintf("#%d failed", msg.Handle)
		}
		m.refresh()

	case views.ClipChosenMsg:
		handle := m.nextHandle
		m.nextHandle++
		m.status = "Preparing " + filepath.Base(msg.Path)
		cmds = append(cmds, m.prepareCmd(msg.Path, handle))

	case tea.KeyMsg:
		if m.sessionsView.Browsing {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			var cmd tea.Cmd
			m.sessionsView, cmd = m.sessionsView.Update(msg)
			return m, cmd
		}
		return m.handleKey(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" || key == m.keys.Quit {
		return m, tea.Quit
	}
	if key == "o" {
		m.sessionsView.OpenBrowser()
		return m, nil
	}

	switch key {
	case m.keys.Previous, "k":
		m.sessionsView.List.MoveUp()
		m.refresh()
		return m, nil
	case m.keys.Next, "j":
		m.sessionsView.List.MoveDown()
		m.refresh()
		return m, nil
	}

	info, ok := m.sessionsView.Selected()
	if !ok {
		return m, nil
	}

	var (
		err error
		cmd tea.Cmd
	)
	switch key {
	case m.keys.PlayPause:
		if info.Status == api.StatusPlaying {
			err = m.ctrl.Pause(info.Handle)
		} else {
			cmd, err = m.playCmd(info.Handle)
		}
	case m.keys.Stop:
		err = m.ctrl.Stop(info.Handle)
	case m.keys.Release:
		err = m.ctrl.Release(info.Handle)
	case m.keys.Loop:
		err = m.ctrl.SetLooping(info.Handle, !info.Looping)
	case m.keys.VolumeUp, "=":
		err = m.ctrl.SetVolume(info.Handle, info.Left+volumeStep, info.Right+volumeStep)
	case m.keys.VolumeDown:
		err = m.ctrl.SetVolume(info.Handle, info.Left-volumeStep, info.Right-volumeStep)
	case m.keys.SeekForward:
		err = m.ctrl.SetCurrentTime(info.Handle, (info.Position + seekStep).Seconds())
	case m.keys.SeekBack:
		target := info.Position - seekStep
		if target < 0 {
			target = 0
		}
		err = m.ctrl.SetCurrentTime(info.Handle, target.Seconds())
	default:
		return m, nil
	}

	m.err = err
	if err != nil {
		m.logger.Debugw("Console command failed", "key", key, "handle", info.Handle, "error", err)
	}
	m.refresh()
	return m, cmd
}

// playCmd starts playback and waits for its outcome
func (m Model) playCmd(handle api.Handle) (tea.Cmd, error) {
	done, err := m.ctrl.Play(handle)
	if err != nil {
		return nil, err
	}
	return func() tea.Msg {
		success, ok := <-done
		if !ok {
			return nil
		}
		return PlayResultMsg{Handle: handle, Success: success}
	}, nil
}

func (m Model) prepareCmd(path string, handle api.Handle) tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		duration, err := ctrl.Prepare(ctx, path, handle)
		return PreparedMsg{Handle: handle, Duration: duration, Err: err}
	}
}

// refresh reloads sessions and the selected session's detail
func (m *Model) refresh() {
	m.sessionsView.SetSessions(m.ctrl.Sessions())
	if info, ok := m.sessionsView.Selected(); ok {
		m.sessionView.SetInfo(&info)
	} else {
		m.sessionView.SetInfo(nil)
	}
}

// updateViewSizes updates view dimensions
func (m *Model) updateViewSizes() {
	m.sessionView.Width = m.width
	m.sessionView.ProgressBar.Width = m.width - 8
	m.sessionsView.Width = m.width
	m.sessionsView.Height = m.height - 14
	m.sessionsView.List.Width = m.width - 6
	m.sessionsView.List.Height = m.height - 18
	m.sessionsView.Browser.Width = m.width
	m.sessionsView.Browser.Height = m.height - 4
}

// View renders the UI
func (m Model) View() string {
	var sb string

	sb += m.headerStyle.Render("soundbridge")
	sb += "\n"

	if m.sessionsView.Browsing {
		sb += m.sessionsView.View()
	} else {
		sb += m.sessionView.View()
		sb += "\n"
		sb += m.sessionsView.View()
	}

	if m.status != "" {
		sb += "\n" + m.statusStyle.Render(m.status)
	}
	if m.err != nil {
		sb += "\n" + m.errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	return sb
}

// Run starts the console and blocks until the user quits or ctx is done
func Run(ctx context.Context, model Model) error {
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
