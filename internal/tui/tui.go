package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatusProvider supplies the current snapshot each frame.
type StatusProvider func() Snapshot

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	agentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	lowHPStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	panelBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type model struct {
	provider StatusProvider
	snap     Snapshot
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m.snap = m.provider()
		return m, tickCmd()
	}
	return m, nil
}

func (m model) View() string {
	var out strings.Builder
	out.WriteString(titleStyle.Render("voxmind") + dimStyle.Render("  press q to quit") + "\n\n")

	if len(m.snap.Agents) == 0 {
		out.WriteString(dimStyle.Render("waiting for agents...") + "\n")
	}
	for _, a := range m.snap.Agents {
		out.WriteString(panelBorder.Render(renderAgent(a)) + "\n")
	}

	if len(m.snap.Chat) > 0 {
		out.WriteString("\n" + dimStyle.Render("── chat ──") + "\n")
		for _, line := range m.snap.Chat {
			out.WriteString(line + "\n")
		}
	}
	return out.String()
}

func renderAgent(a AgentStatus) string {
	hp := fmt.Sprintf("HP %d/20  Food %d/20", a.Health, a.Food)
	if a.Health <= 6 {
		hp = lowHPStyle.Render(hp)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", agentStyle.Render(a.Name), hp)

	thought := a.Thought
	if thought == "" {
		thought = "(no thought yet)"
	}
	fmt.Fprintf(&b, "%s %s\n", dimStyle.Render("thinks"), thought)

	if a.Action != "" {
		mark := okStyle.Render("ok")
		if !a.Success {
			mark = failStyle.Render("fail")
		}
		fmt.Fprintf(&b, "%s %s [%s] %s\n", dimStyle.Render("did"), a.Action, mark, a.Result)
	}
	if a.SkillActive {
		fmt.Fprintf(&b, "%s %s %s %s", dimStyle.Render("skill"), a.Skill, progressBar(a.SkillFrac), a.SkillMsg)
	}
	return strings.TrimRight(b.String(), "\n")
}

func progressBar(frac float64) string {
	const width = 20
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// Run drives the overlay until the context is cancelled or the user
// quits.
func Run(ctx context.Context, provider StatusProvider) error {
	defer bestEffortResetTTY()

	m := model{provider: provider, snap: provider()}
	p := tea.NewProgram(m)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	select {
	case <-ctx.Done():
		p.Quit()
		return ctx.Err()
	case err := <-done:
		return err
	}
}
