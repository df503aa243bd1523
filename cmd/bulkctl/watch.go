package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/reelsaver/api/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const maxEventLines = 8

type statusMsg struct {
	status *model.BulkStatusResponse
	err    error
}

type tickMsg time.Time

type watchModel struct {
	api    *apiClient
	jobID  string
	bar    progress.Model
	width  int
	last   *model.BulkStatusResponse
	pct    float64
	events []string
	done   bool
	failed bool
	err    error
}

func newWatchModel(api *apiClient, jobID string) watchModel {
	return watchModel{
		api:   api,
		jobID: jobID,
		bar:   progress.New(progress.WithDefaultGradient()),
	}
}

func watchJob(api *apiClient, jobID string) error {
	p := tea.NewProgram(newWatchModel(api, jobID))
	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	fm, ok := finalModel.(watchModel)
	if !ok {
		return nil
	}
	if fm.err != nil {
		return fm.err
	}
	if fm.failed {
		return errors.New("job failed")
	}
	return nil
}

func fetchStatusCmd(api *apiClient, jobID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		status, err := api.Status(ctx, jobID)
		return statusMsg{status: status, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m watchModel) Init() tea.Cmd {
	return fetchStatusCmd(m.api, m.jobID)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(20, min(msg.Width-8, 60))
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		return m, fetchStatusCmd(m.api, m.jobID)
	case statusMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		obs := observe(m.last, msg.status)
		m.events = append(m.events, obs.Events...)
		if len(m.events) > maxEventLines {
			m.events = m.events[len(m.events)-maxEventLines:]
		}
		m.pct = percent(m.pct, msg.status)
		m.last = msg.status
		if obs.Done {
			m.done = true
			m.failed = obs.Failed
			return m, tea.Quit
		}
		return m, tickCmd()
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("bulk job "+m.jobID) + "\n\n")

	if m.last == nil {
		b.WriteString(mutedStyle.Render("waiting for first status...") + "\n")
		return panelStyle.Render(b.String()) + "\n"
	}

	s := m.last
	b.WriteString(m.bar.ViewAs(m.pct) + "\n")
	b.WriteString(fmt.Sprintf("%s  %d/%d  ok %d  failed %d\n",
		statusLabel(s.Status), s.Completed+s.Failed, s.Total, s.Completed, s.Failed))

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, e := range m.events {
			b.WriteString(mutedStyle.Render(e) + "\n")
		}
	}

	if m.done && !m.failed {
		b.WriteString("\n" + okStyle.Render("download: ") + s.ZipURL + "\n")
		if len(s.FailedURLs) > 0 {
			b.WriteString(errorStyle.Render(fmt.Sprintf("%d urls failed", len(s.FailedURLs))) + "\n")
			for _, u := range s.FailedURLs {
				b.WriteString("  " + u + "\n")
			}
		}
	}
	if !m.done {
		b.WriteString("\n" + mutedStyle.Render("q to stop watching"))
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func statusLabel(status model.JobStatus) string {
	switch status {
	case model.JobStatusCompleted:
		return okStyle.Render(string(status))
	case model.JobStatusFailed:
		return errorStyle.Render(string(status))
	}
	return titleStyle.Render(string(status))
}
