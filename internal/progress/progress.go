// Package progress shows a spinner on the terminal while a status query runs.
package progress

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/keyboard-slayer/mcstatus/internal/minecraft"
)

var spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")) // Purple

// Query runs one status query and reports its steps through report.
type Query func(ctx context.Context, report func(minecraft.Step)) (*minecraft.Status, error)

// Enabled reports whether w is a terminal a spinner can be drawn on.
func Enabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type stepMsg minecraft.Step

type doneMsg struct {
	status *minecraft.Status
	err    error
}

type Model struct {
	spinner spinner.Model
	step    minecraft.Step
	run     tea.Cmd
	status  *minecraft.Status
	err     error
	done    bool
}

func New(run tea.Cmd) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{spinner: s, step: minecraft.StepConnecting, run: run}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stepMsg:
		m.step = minecraft.Step(msg)
		return m, nil

	case doneMsg:
		m.status, m.err, m.done = msg.status, msg.err, true
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	if m.done {
		return ""
	}

	return m.spinner.View() + " " + m.step.String() + "\n"
}

// Result returns what the query produced.
func (m Model) Result() (*minecraft.Status, error) {
	if !m.done {
		return nil, errors.New("query did not finish")
	}

	return m.status, m.err
}

// Run runs query with a spinner on out that follows its steps. The spinner
// is cleared before Run returns.
func Run(ctx context.Context, out io.Writer, query Query) (*minecraft.Status, error) {
	var p *tea.Program

	run := func() tea.Msg {
		status, err := query(ctx, func(step minecraft.Step) {
			p.Send(stepMsg(step))
		})
		return doneMsg{status: status, err: err}
	}

	p = tea.NewProgram(New(run),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
		tea.WithContext(ctx),
	)

	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	return final.(Model).Result()
}
