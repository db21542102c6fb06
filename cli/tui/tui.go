package tui

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// View types.
const (
	ViewMessages = "messages"
	ViewSummary  = "summary"
)

// Run starts the TUI for viewType.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	model, err := newModel(viewType, data)
	if err != nil {
		return err
	}
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// RenderStatic renders a view once at a fixed size, without a terminal.
func RenderStatic(viewType string, data any) (string, error) {
	model, err := newModel(viewType, data)
	if err != nil {
		return "", err
	}
	sized, _ := model.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return lipgloss.NewStyle().Padding(1, 2).Render(sized.View()), nil
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewMessages, ViewSummary}
}

func newModel(viewType string, data any) (tea.Model, error) {
	switch viewType {
	case ViewMessages:
		return NewMessagesModel(data)
	case ViewSummary:
		return NewSummaryModel(data)
	default:
		return nil, fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
}

// keyMap defines key bindings.
type keyMap struct {
	Quit   key.Binding
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Top: key.NewBinding(
		key.WithKeys("home", "g"),
		key.WithHelp("g", "top"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("end", "G"),
		key.WithHelp("G", "bottom"),
	),
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
