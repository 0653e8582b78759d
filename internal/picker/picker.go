// Package picker lets the user choose one of the saved servers. Every entry
// is pinged in the background so the list shows who is online.
package picker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/keyboard-slayer/mcstatus/internal/mcerrors"
	"github.com/keyboard-slayer/mcstatus/internal/minecraft"
	"github.com/keyboard-slayer/mcstatus/internal/servers"
)

var ErrCancelled = errors.New("no server chosen")

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")). // White
			Background(lipgloss.Color("#7D56F4")). // Purple
			Padding(0, 1)
)

// Prober queries one server. The picker calls it once per entry, each call
// from its own goroutine.
type Prober func(ctx context.Context, entry servers.Entry) (*minecraft.Status, error)

type item struct {
	entry  servers.Entry
	status string
}

func (i item) Title() string { return i.entry.Name }

func (i item) Description() string {
	return fmt.Sprintf("address: %s · %s", i.entry.Address, i.status)
}

func (i item) FilterValue() string { return i.entry.Name + " " + i.entry.Address }

type probeMsg struct {
	index  int
	status *minecraft.Status
	err    error
}

type Model struct {
	ctx       context.Context
	list      list.Model
	probe     Prober
	chosen    *servers.Entry
	cancelled bool
}

func New(ctx context.Context, entries []servers.Entry, probe Prober) Model {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = item{entry: e, status: "pinging..."}
	}

	l := list.New(items, list.NewDefaultDelegate(), 80, 20)
	l.Title = "Which server?"
	l.Styles.Title = titleStyle
	l.SetShowStatusBar(false)

	return Model{ctx: ctx, list: l, probe: probe}
}

func (m Model) Init() tea.Cmd {
	items := m.list.Items()
	cmds := make([]tea.Cmd, 0, len(items))

	for i, it := range items {
		cmds = append(cmds, m.probeCmd(i, it.(item).entry))
	}

	return tea.Batch(cmds...)
}

func (m Model) probeCmd(index int, entry servers.Entry) tea.Cmd {
	return func() tea.Msg {
		status, err := m.probe(m.ctx, entry)
		return probeMsg{index: index, status: status, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
		return m, nil

	case probeMsg:
		return m, m.applyProbe(msg)

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "enter":
			if it, ok := m.list.SelectedItem().(item); ok {
				m.chosen = &it.entry
				return m, tea.Quit
			}
			return m, nil

		case "esc":
			if m.list.FilterState() == list.FilterApplied {
				break
			}
			m.cancelled = true
			return m, tea.Quit

		case "ctrl+c", "q":
			m.cancelled = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) applyProbe(msg probeMsg) tea.Cmd {
	items := m.list.Items()
	if msg.index < 0 || msg.index >= len(items) {
		return nil
	}

	it := items[msg.index].(item)
	it.status = describe(msg.status, msg.err)

	return m.list.SetItem(msg.index, it)
}

func describe(status *minecraft.Status, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("%d/%d online", status.Players.Online, status.Players.Max)
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, mcerrors.ErrTimeout):
		return "no answer"
	case errors.Is(err, mcerrors.ErrConnection):
		return "offline"
	default:
		return "unreadable status"
	}
}

func (m Model) View() string {
	return docStyle.Render(m.list.View())
}

// Chosen returns the entry the user picked.
func (m Model) Chosen() (servers.Entry, error) {
	if m.cancelled || m.chosen == nil {
		return servers.Entry{}, ErrCancelled
	}

	return *m.chosen, nil
}

// Run shows the picker on out until the user picks an entry or gives up.
func Run(ctx context.Context, out io.Writer, entries []servers.Entry, probe Prober) (servers.Entry, error) {
	if len(entries) == 0 {
		return servers.Entry{}, fmt.Errorf("%w: the server list is empty", mcerrors.ErrConfig)
	}

	// Probes still in flight when the user picks are not worth waiting for.
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(probeCtx, entries, probe), tea.WithOutput(out), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return servers.Entry{}, ctx.Err()
		}
		return servers.Entry{}, fmt.Errorf("picker: %w", err)
	}

	return final.(Model).Chosen()
}
