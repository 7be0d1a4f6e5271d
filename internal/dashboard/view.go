package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"screentime/internal/domain"
	"screentime/internal/timefmt"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(1, 2)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#3C3C3C"))

	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")).Strikethrough(true)
	bigStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	readOnlyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
)

func (m *Model) View() string {
	header := titleStyle.Render("Screen Time")
	if m.readOnly {
		header = lipgloss.JoinHorizontal(lipgloss.Top, header, "  ", readOnlyStyle.Render("read-only"))
	}

	var body string
	if m.mode == progressView && m.progress != nil {
		body = m.progressView()
	} else {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.listView(), "  ", m.detailView())
	}

	footer := helpStyle.Render(m.help())
	if m.status != "" {
		footer = lipgloss.JoinVertical(lipgloss.Left, statusStyle.Render(m.status), footer)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, "", footer)
}

func (m *Model) listView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Tasks"))
	b.WriteString("\n\n")
	if len(m.tasks) == 0 {
		b.WriteString("no tasks")
		return boxStyle.Render(b.String())
	}

	now := m.now()
	for i, t := range m.tasks {
		line := fmt.Sprintf("%s %-24s %-10s %s", marker(t), truncate(t.Title, 24), truncate(t.AppName, 10), daysLeft(t, now))
		switch {
		case i == m.cursor:
			line = cursorStyle.Render(line)
		case t.Completed:
			line = doneStyle.Render(line)
		case t.IsActive:
			line = activeStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m *Model) detailView() string {
	t, ok := m.rec.Selected()
	if !ok {
		return boxStyle.Render("press enter to select a task")
	}

	source := "frozen"
	if t.IsActive {
		source = "live, feed " + m.feed.State().String()
	}
	lines := []string{
		headerStyle.Render(truncate(t.Title, 30)),
		"",
		bigStyle.Render(timefmt.FormatSeconds(m.rec.Displayed())),
		helpStyle.Render("today, " + source),
		"",
		"app:    " + t.AppName,
		"target: " + targetLabel(t),
	}
	if t.Deadline != nil {
		lines = append(lines, fmt.Sprintf("deadline: %s (%.0f%% elapsed)",
			t.Deadline.Format("2006-01-02"), t.DeadlineProgress(m.now())*100))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) progressView() string {
	p := m.progress
	var b strings.Builder
	b.WriteString(headerStyle.Render("Progress: " + truncate(p.Title, 30)))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%-12s %-14s %-14s %-8s %s\n", "date", "actual", "target", "eff", "")
	for _, d := range p.Days {
		eff := "-"
		if d.Efficiency != nil {
			eff = fmt.Sprintf("%.0f%%", *d.Efficiency)
		}
		fmt.Fprintf(&b, "%-12s %-14s %-14s %-8s %s\n", d.Date, d.ActualLabel, d.TargetLabel, eff, d.Badge)
	}
	if len(p.Days) == 0 {
		b.WriteString("no usage recorded\n")
	}
	b.WriteString("\n")
	if p.AverageEfficiency != nil {
		fmt.Fprintf(&b, "average efficiency: %.1f%%\n", *p.AverageEfficiency)
	}
	fmt.Fprintf(&b, "today: %s   page %d/%d", timefmt.FormatLabel(p.TodaySeconds), p.Page+1, max(p.TotalPages, 1))
	return boxStyle.Render(b.String())
}

func (m *Model) help() string {
	if m.mode == progressView {
		return "n/b: page • esc: back • q: quit"
	}
	if m.readOnly {
		return "j/k: move • enter: select • p: progress • r: reload • q: quit"
	}
	return "j/k: move • enter: select • a/d: activate/deactivate • t: toggle done • x: delete • p: progress • q: quit"
}

func marker(t domain.Task) string {
	switch {
	case t.Completed:
		return "✓"
	case t.IsActive:
		return "●"
	default:
		return "○"
	}
}

func targetLabel(t domain.Task) string {
	if t.HoursPerDay.IsZero() {
		return "none"
	}
	h, err := t.HoursPerDay.Hours()
	if err != nil {
		return t.HoursPerDay.String() + " (unreadable)"
	}
	return timefmt.FormatLabel(int64(h * 3600))
}

func daysLeft(t domain.Task, now time.Time) string {
	if t.Deadline == nil {
		return ""
	}
	n := t.DaysLeft(now)
	if n == 1 {
		return "1 day left"
	}
	return fmt.Sprintf("%d days left", n)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
