package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/cukemsg/cli/reader"
)

// SummaryModel is a Bubble Tea model for the run summary.
type SummaryModel struct {
	summary  *reader.Summary
	width    int
	quitting bool
}

// NewSummaryModel creates a summary model from a *reader.Summary or a
// *reader.Report.
func NewSummaryModel(data any) (SummaryModel, error) {
	switch d := data.(type) {
	case *reader.Summary:
		if d != nil {
			return SummaryModel{summary: d}, nil
		}
	case *reader.Report:
		if d != nil && d.Summary != nil {
			return SummaryModel{summary: d.Summary}, nil
		}
	}
	return SummaryModel{}, errors.New("summary view requires a summary")
}

// Init implements tea.Model.
func (m SummaryModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m SummaryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m SummaryModel) View() string {
	if m.quitting {
		return ""
	}
	return renderSummary(m.summary) + "\n" + HelpStyle.Render("Press q or Ctrl+C to quit")
}

func renderSummary(s *reader.Summary) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Test Run"))
	b.WriteString("\n")

	state := WarningStyle.Render("incomplete")
	if s.Complete && s.Success != nil {
		if *s.Success {
			state = SuccessStyle.Render("succeeded")
		} else {
			state = ErrorStyle.Render("failed")
		}
	}
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Result:"), state))
	if s.Implementation != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Implementation:"), ValueStyle.Render(s.Implementation)))
	}
	if len(s.OpenCases) > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Open cases:"), WarningStyle.Render(itoa(len(s.OpenCases)))))
	}
	b.WriteString("\n")

	other := 0
	for status, n := range s.ByStatus {
		if status != "PASSED" && status != "FAILED" {
			other += n
		}
	}
	boxes := []string{
		renderStatBox("Messages", s.Total, highlightColor),
		renderStatBox("Passed", s.ByStatus["PASSED"], successColor),
		renderStatBox("Failed", s.ByStatus["FAILED"], errorColor),
		renderStatBox("Other", other, warningColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	return b.String()
}
