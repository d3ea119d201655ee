package components

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// FileEntry is a file or directory offered by the browser
type FileEntry struct {
	Name  string
	Path  string
	IsDir bool
}

// ClipBrowser picks an audio file to prepare
type ClipBrowser struct {
	Width       int
	Height      int
	CurrentPath string
	Entries     []FileEntry
	Selected    int
	Offset      int
	Accept      func(path string) bool
	Err         error

	DirStyle      lipgloss.Style
	FileStyle     lipgloss.Style
	SelectedStyle lipgloss.Style
	PathStyle     lipgloss.Style
	BorderStyle   lipgloss.Style
}

// NewClipBrowser opens a browser at startPath, or the working directory
// when it is empty. accept filters which files are listed.
func NewClipBrowser(startPath string, accept func(string) bool, width, height int) ClipBrowser {
	b := ClipBrowser{
		Width:  width,
		Height: height,
		Accept: accept,
		DirStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true),
		FileStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")),
		SelectedStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("255")).
			Bold(true),
		PathStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true),
		BorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
	}

	if startPath == "" {
		if wd, err := os.Getwd(); err == nil {
			startPath = wd
		} else {
			startPath = string(filepath.Separator)
		}
	}

	b.Navigate(startPath)
	return b
}

// Navigate lists the directory at path
func (b *ClipBrowser) Navigate(path string) {
	b.CurrentPath = path
	b.Selected = 0
	b.Offset = 0
	b.Err = nil
	b.Entries = nil

	entries, err := os.ReadDir(path)
	if err != nil {
		b.Err = err
		return
	}

	if parent := filepath.Dir(path); parent != path {
		b.Entries = append(b.Entries, FileEntry{Name: "..", Path: parent, IsDir: true})
	}

	var dirs, files []FileEntry
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		full := filepath.Join(path, entry.Name())
		switch {
		case entry.IsDir():
			dirs = append(dirs, FileEntry{Name: entry.Name(), Path: full, IsDir: true})
		case b.Accept == nil || b.Accept(full):
			files = append(files, FileEntry{Name: entry.Name(), Path: full})
		}
	}

	byName := func(entries []FileEntry) {
		sort.Slice(entries, func(i, j int) bool {
			return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
		})
	}
	byName(dirs)
	byName(files)

	b.Entries = append(b.Entries, dirs...)
	b.Entries = append(b.Entries, files...)
}

// Update handles navigation keys
func (b ClipBrowser) Update(msg tea.Msg) (ClipBrowser, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return b, nil
	}

	switch key.String() {
	case "up", "k":
		if b.Selected > 0 {
			b.Selected--
		}
	case "down", "j":
		if b.Selected < len(b.Entries)-1 {
			b.Selected++
		}
	case "home":
		b.Selected = 0
	case "end":
		b.Selected = len(b.Entries) - 1
	case "backspace":
		if parent := filepath.Dir(b.CurrentPath); parent != b.CurrentPath {
			b.Navigate(parent)
		}
	}
	b.ensureVisible()
	return b, nil
}

// EnterSelected opens the selected directory, or returns the selected
// file's path.
func (b *ClipBrowser) EnterSelected() string {
	if b.Selected < 0 || b.Selected >= len(b.Entries) {
		return ""
	}
	entry := b.Entries[b.Selected]
	if entry.IsDir {
		b.Navigate(entry.Path)
		return ""
	}
	return entry.Path
}

func (b *ClipBrowser) visibleHeight() int {
	h := b.Height - 6
	if h < 1 {
		return 1
	}
	return h
}

func (b *ClipBrowser) ensureVisible() {
	if b.Selected < 0 {
		b.Selected = 0
	}
	visible := b.visibleHeight()
	if b.Selected < b.Offset {
		b.Offset = b.Selected
	} else if b.Selected >= b.Offset+visible {
		b.Offset = b.Selected - visible + 1
	}
}

// View renders the browser
func (b ClipBrowser) View() string {
	var sb strings.Builder

	sb.WriteString(b.PathStyle.Render(b.CurrentPath))
	sb.WriteString("\n\n")

	if b.Err != nil {
		sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("Error: " + b.Err.Error()))
		sb.WriteString("\n")
	}

	end := b.Offset + b.visibleHeight()
	if end > len(b.Entries) {
		end = len(b.Entries)
	}

	clips := 0
	for _, e := range b.Entries {
		if !e.IsDir {
			clips++
		}
	}

	for i := b.Offset; i < end; i++ {
		entry := b.Entries[i]
		line := entry.Name
		if entry.IsDir {
			line += "/"
		}

		switch {
		case i == b.Selected:
			sb.WriteString(b.SelectedStyle.Render(line))
		case entry.IsDir:
			sb.WriteString(b.DirStyle.Render(line))
		default:
			sb.WriteString(b.FileStyle.Render(line))
		}
		sb.WriteString("\n")
	}

	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sb.WriteString(muted.Render(fmt.Sprintf("%d playable clips", clips)))
	sb.WriteString("\n\n")
	sb.WriteString(muted.Render("[Enter] Open/Prepare  [Backspace] Up  [Esc] Cancel"))

	return b.BorderStyle.Width(b.Width - 4).Render(sb.String())
}
