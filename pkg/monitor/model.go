package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/entrhq/translator/pkg/task"
)

// maxFailuresShown caps the failure list in the view.
const maxFailuresShown = 8

// Loader reads the current Task.
type Loader func(ctx context.Context) (*task.Task, error)

type tickMsg time.Time

type statusMsg struct {
	status *Status
	err    error
}

// Model is the Bubble Tea program behind "translator monitor".
type Model struct {
	spinner  spinner.Model
	load     Loader
	matcher  *Matcher
	interval time.Duration
	now      func() time.Time

	status *Status
	err    error
	width  int
}

// NewModel creates a monitor that reloads the Task every interval.
func NewModel(load Loader, matcher *Matcher, interval time.Duration) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = headerStyle
	return &Model{
		spinner:  s,
		load:     load,
		matcher:  matcher,
		interval: interval,
		now:      time.Now,
		width:    60,
	}
}

// Init starts polling and the spinner.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh())
}

// Update handles Bubble Tea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, m.refresh()

	case statusMsg:
		m.status, m.err = msg.status, msg.err
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// refresh loads the Task in the background.
func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		t, err := m.load(context.Background())
		if errors.Is(err, task.ErrNoTask) {
			return statusMsg{}
		}
		if err != nil {
			return statusMsg{err: err}
		}
		if !m.matcher.Match(t.OriginURL) {
			return statusMsg{}
		}
		s := Snapshot(t, m.now())
		return statusMsg{status: &s}
	}
}

// View renders the monitor.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("translator monitor"))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
	case m.status == nil:
		b.WriteString(mutedStyle.Render("No task. Start one with `translator start`."))
	default:
		m.renderStatus(&b, *m.status)
	}

	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("q to quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderStatus(b *strings.Builder, s Status) {
	b.WriteString(mutedStyle.Render(s.OriginURL))
	b.WriteString("\n")

	barWidth := m.width - 20
	if barWidth > 60 {
		barWidth = 60
	}
	fmt.Fprintf(b, "%s %d/%d (%.0f%%)\n", Bar(s.Percent(), barWidth), s.Settled(), s.Total, s.Percent())

	if !s.Done {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
	}
	b.WriteString(Render(s))

	if len(s.Failures) == 0 {
		return
	}
	b.WriteString("\n\n")
	b.WriteString(errorStyle.Render(fmt.Sprintf("%d failed blocks", len(s.Failures))))
	for i, f := range s.Failures {
		if i == maxFailuresShown {
			fmt.Fprintf(b, "\n  %s", mutedStyle.Render(fmt.Sprintf("… and %d more", len(s.Failures)-maxFailuresShown)))
			break
		}
		fmt.Fprintf(b, "\n  #%d %s %s", f.Index, f.Reason.Tag(), mutedStyle.Render(f.Key))
	}
}
