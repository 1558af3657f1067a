package status

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Width(14).Foreground(lipgloss.Color("8"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type reportMsg Report

type model struct {
	report  Report
	started time.Time
	onQuit  func()
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}
	case reportMsg:
		m.report = Report(msg)
	}
	return m, nil
}

func (m model) View() string {
	r := m.report
	rows := [][2]string{
		{"throughput", fmt.Sprintf("%.3f MBps", r.Transfer.MBps)},
		{"average", fmt.Sprintf("%.3f MBps", r.Transfer.AvgMBps)},
		{"received", fmt.Sprintf("%d MiB", r.Transfer.Total>>20)},
		{"frames", fmt.Sprint(r.Decoder.Frames)},
		{"sync lost", fmt.Sprint(r.Decoder.SyncLosses)},
		{"xfer errors", fmt.Sprint(r.Transfer.Errors)},
		{"overruns", fmt.Sprint(r.Transfer.Overruns)},
		{"dropped rows", fmt.Sprint(r.DroppedRows)},
		{"uptime", time.Since(m.started).Truncate(time.Second).String()},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("digital RGB capture"))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(labelStyle.Render(row[0]))
		b.WriteString(row[1])
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("q: quit"))
	return boxStyle.Render(b.String()) + "\n"
}

// TUI is a full screen status view. Pressing q or ctrl+c calls onQuit.
type TUI struct {
	p    *tea.Program
	done chan error
}

// NewTUI starts the status view on the terminal.
func NewTUI(onQuit func()) *TUI {
	m := model{started: time.Now(), onQuit: onQuit}
	t := &TUI{
		p:    tea.NewProgram(m),
		done: make(chan error, 1),
	}
	go func() {
		_, err := t.p.Run()
		t.done <- err
	}()
	return t
}

// Update sends r to the view.
func (t *TUI) Update(r Report) {
	t.p.Send(reportMsg(r))
}

// Close stops the view and restores the terminal.
func (t *TUI) Close() error {
	t.p.Quit()
	return <-t.done
}
