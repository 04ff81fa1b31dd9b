// cmd/arena-viewer/main.go
//
// Spectator helper. Subscribes to a match broadcast and renders a rolling
// round summary. Joining late is fine: the stream simply starts at the next
// published snapshot.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/arenalab/arena/internal/broadcast"
	"github.com/arenalab/arena/internal/channel"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	frameStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2)
	statusStyle = lipgloss.NewStyle().Faint(true)
	overStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
)

// matchOverLinger keeps the final snapshot on screen before the viewer
// quits on its own; it must stay under the host's teardown grace.
const matchOverLinger = 2 * time.Second

type snapshotMsg broadcast.Snapshot

type streamClosedMsg struct{ err error }

type lingerDoneMsg struct{}

type model struct {
	addr    string
	sub     *channel.Subscriber
	spin    spinner.Model
	last    *broadcast.Snapshot
	seen    int
	over    bool
	outcome string
	err     error
}

func newModel(addr string, sub *channel.Subscriber) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return model{addr: addr, sub: sub, spin: s}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForSnapshot(m.sub))
}

func waitForSnapshot(sub *channel.Subscriber) tea.Cmd {
	return func() tea.Msg {
		frame, err := sub.Next(context.Background())
		if err != nil {
			return streamClosedMsg{err: err}
		}
		var snap broadcast.Snapshot
		if err := json.Unmarshal(frame, &snap); err != nil {
			return streamClosedMsg{err: err}
		}
		return snapshotMsg(snap)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case snapshotMsg:
		snap := broadcast.Snapshot(msg)
		m.last = &snap
		m.seen++
		if snap.Action == broadcast.ActionMatchOver {
			m.over = true
			m.outcome = summarizeOutcome(snap.Payload)
			return m, tea.Tick(matchOverLinger, func(time.Time) tea.Msg { return lingerDoneMsg{} })
		}
		return m, waitForSnapshot(m.sub)
	case lingerDoneMsg:
		return m, tea.Quit
	case streamClosedMsg:
		m.err = msg.err
		return m, tea.Quit
	default:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	title := titleStyle.Render("arena viewer")
	body := fmt.Sprintf("%s waiting for snapshots from %s", m.spin.View(), m.addr)
	switch {
	case m.over:
		body = overStyle.Render(m.outcome)
	case m.last != nil:
		body = fmt.Sprintf("round %d\n%s", m.last.Round, summarizePayload(m.last.Payload))
	}
	status := statusStyle.Render(fmt.Sprintf("%d snapshots seen - press q to quit", m.seen))
	return frameStyle.Render(title+"\n\n"+body) + "\n" + status + "\n"
}

// summarizePayload renders the opaque payload's top-level fields without
// assuming anything about the engine's schema.
func summarizePayload(payload json.RawMessage) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return string(payload)
	}
	out := ""
	for _, key := range []string{"teams", "scores", "positions"} {
		if v, ok := fields[key]; ok {
			out += fmt.Sprintf("%s: %s\n", key, v)
		}
	}
	if out == "" {
		return string(payload)
	}
	return out
}

func summarizeOutcome(payload json.RawMessage) string {
	var out struct {
		Result string `json:"result"`
		Reason string `json:"reason"`
		Rounds int    `json:"rounds"`
	}
	if err := json.Unmarshal(payload, &out); err != nil || out.Result == "" {
		return "match over"
	}
	if out.Reason != "" {
		return fmt.Sprintf("match over: %s (%s) after %d rounds", out.Result, out.Reason, out.Rounds)
	}
	return fmt.Sprintf("match over: %s after %d rounds", out.Result, out.Rounds)
}

func main() {
	var addr string
	fs := flag.NewFlagSet("arena-viewer", flag.ContinueOnError)
	fs.StringVar(&addr, "subscribe", "", "broadcast address to subscribe to")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if addr == "" {
		fmt.Fprintln(os.Stderr, "arena-viewer: -subscribe is required")
		os.Exit(2)
	}
	sub, err := channel.OpenSubscriber(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arena-viewer: %v\n", err)
		os.Exit(1)
	}
	defer sub.Close()

	p := tea.NewProgram(newModel(addr, sub), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "arena-viewer: %v\n", err)
		os.Exit(1)
	}
}
