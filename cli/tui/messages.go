package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/cukemsg/cli/reader"
)

// chromeHeight is the number of lines used by the summary header and help.
const chromeHeight = 16

// MessagesModel is a scrollable list of decoded messages under the run
// summary.
type MessagesModel struct {
	report   *reader.Report
	cursor   int
	offset   int
	width    int
	height   int
	quitting bool
}

// NewMessagesModel creates a messages model from a *reader.Report.
func NewMessagesModel(data any) (MessagesModel, error) {
	report, ok := data.(*reader.Report)
	if !ok || report == nil || report.Summary == nil {
		return MessagesModel{}, errors.New("messages view requires a report")
	}
	return MessagesModel{report: report}, nil
}

// Init implements tea.Model.
func (m MessagesModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m MessagesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		last := len(m.report.Messages) - 1
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < last {
				m.cursor++
			}
		case key.Matches(msg, keys.Top):
			m.cursor = 0
		case key.Matches(msg, keys.Bottom):
			m.cursor = max(last, 0)
		}
	}

	m.scroll()
	return m, nil
}

// scroll keeps the cursor inside the visible window.
func (m *MessagesModel) scroll() {
	page := m.pageSize()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
}

func (m MessagesModel) pageSize() int {
	return max(m.height-chromeHeight, 5)
}

// Cursor returns the index of the selected row.
func (m MessagesModel) Cursor() int {
	return m.cursor
}

// View implements tea.Model.
func (m MessagesModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(renderSummary(m.report.Summary))
	b.WriteString("\n\n")

	rows := m.report.Messages
	if len(rows) == 0 {
		b.WriteString(HelpStyle.Render("(no messages)"))
	}
	end := min(m.offset+m.pageSize(), len(rows))
	for i := m.offset; i < end; i++ {
		b.WriteString(m.renderRow(i, rows[i]))
		b.WriteString("\n")
	}

	if len(rows) > 0 {
		b.WriteString(HelpStyle.Render(fmt.Sprintf("%d/%d  ↑/↓ move  g/G top/bottom  q quit", m.cursor+1, len(rows))))
	}
	return b.String()
}

func (m MessagesModel) renderRow(i int, row reader.MessageRow) string {
	marker := "  "
	typ := ValueStyle.Render(fmt.Sprintf("%-20s", row.Type))
	if i == m.cursor {
		marker = SelectedStyle.Render("> ")
		typ = SelectedStyle.Render(fmt.Sprintf("%-20s", row.Type))
	}

	parts := []string{marker + fmt.Sprintf("%4d ", row.Index) + typ, row.Timestamp}
	if row.PickleID != "" {
		parts = append(parts, row.PickleID)
	}
	if row.Status != "" {
		parts = append(parts, StatusStyle(row.Status).Render(row.Status), row.Duration)
	}
	if row.Detail != "" && i == m.cursor {
		parts = append(parts, HelpStyle.UnsetMarginTop().Render(row.Detail))
	}
	return strings.Join(parts, "  ")
}
