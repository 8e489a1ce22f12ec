// Package tui provides a terminal sequencer for gangsa timelines
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/james-see/gangsa/pkg/config"
	"github.com/james-see/gangsa/pkg/sequencer"
	"github.com/james-see/gangsa/pkg/timeline"
)

// Bronze and lacquer colours of a gamelan frame
var (
	bronze    = lipgloss.Color("#CD7F32")
	gold      = lipgloss.Color("#FFD700")
	lacquer   = lipgloss.Color("#8B0000")
	darkGray  = lipgloss.Color("#333333")
	mutedGray = lipgloss.Color("#666666")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(gold).
			Background(lacquer).
			Padding(0, 2).
			MarginBottom(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(gold)

	lowStyle = lipgloss.NewStyle().
			Foreground(bronze)

	highStyle = lipgloss.NewStyle().
			Foreground(gold).
			Bold(true)

	restStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	playheadStyle = lipgloss.NewStyle().
			Background(darkGray).
			Foreground(gold).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Strikethrough(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(bronze).
			Padding(0, 1)
)

const (
	cellWidth = 3
	tempoStep = 5
)

// positionMsg carries a published playhead update
type positionMsg sequencer.Position

// playedMsg reports the outcome of starting playback
type playedMsg struct {
	err error
}

// Option configures a Model
type Option func(*Model)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// WithAutosaver persists tempo and loop changes
func WithAutosaver(a *config.Autosaver) Option {
	return func(m *Model) { m.autosave = a }
}

// Model is the bubbletea model of the sequencer screen
type Model struct {
	timelines *timeline.Collection
	transport *sequencer.Transport
	autosave  *config.Autosaver
	logger    *zap.Logger

	keys       keyMap
	help       help.Model
	spinner    spinner.Model
	activating bool

	updates <-chan sequencer.Position
	cancel  func()
	pos     sequencer.Position

	err   error
	width int
}

// New creates a model editing timelines and driving transport
func New(timelines *timeline.Collection, transport *sequencer.Transport, opts ...Option) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(gold)

	updates, cancel := transport.Subscribe()
	m := Model{
		timelines: timelines,
		transport: transport,
		logger:    zap.NewNop(),
		keys:      defaultKeyMap(),
		help:      help.New(),
		spinner:   s,
		updates:   updates,
		cancel:    cancel,
		pos:       transport.Publisher().Current(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts listening for playhead updates
func (m Model) Init() tea.Cmd {
	return waitForPosition(m.updates)
}

func waitForPosition(updates <-chan sequencer.Position) tea.Cmd {
	return func() tea.Msg {
		pos, ok := <-updates
		if !ok {
			return nil
		}
		return positionMsg(pos)
	}
}

// Update handles key presses and playback events
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)

	case positionMsg:
		m.pos = sequencer.Position(msg)
		return m, waitForPosition(m.updates)

	case playedMsg:
		m.activating = false
		m.err = msg.err
		if msg.err != nil {
			m.logger.Warn("play failed", zap.Error(msg.err))
		}
		return m, nil

	case spinner.TickMsg:
		if !m.activating {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if i := strings.Index(paletteKeys, msg.String()); i >= 0 && len(msg.String()) == 1 {
		m.appendNote(timeline.Palette[i].Pitch)
		return m, nil
	}

	active := m.timelines.Active()
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.transport.Stop()
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Play):
		if m.transport.State() == sequencer.Playing {
			m.transport.Stop()
			return m, nil
		}
		if m.activating {
			return m, nil
		}
		m.activating = true
		m.err = nil
		return m, tea.Batch(m.spinner.Tick, m.play())

	case key.Matches(msg, m.keys.Loop):
		loop := !m.transport.Loop()
		m.transport.SetLoop(loop)
		m.persist(func(c *config.Config) { c.Loop = loop })

	case key.Matches(msg, m.keys.Faster):
		m.setTempo(m.transport.Tempo() + tempoStep)

	case key.Matches(msg, m.keys.Slower):
		m.setTempo(m.transport.Tempo() - tempoStep)

	case key.Matches(msg, m.keys.Rest):
		_, m.err = m.timelines.AppendRest(active)

	case key.Matches(msg, m.keys.Undo):
		m.err = m.timelines.RemoveLast(active)

	case key.Matches(msg, m.keys.NewTimeline):
		m.timelines.AddTimeline()

	case key.Matches(msg, m.keys.RemoveTimeline):
		m.err = m.timelines.RemoveTimeline(active)

	case key.Matches(msg, m.keys.Clear):
		m.err = m.timelines.ClearTimeline(active)

	case key.Matches(msg, m.keys.Mute):
		_, m.err = m.timelines.ToggleMute(active)

	case key.Matches(msg, m.keys.Next):
		m.err = m.timelines.SetActive(m.nextTimeline(active))

	case key.Matches(msg, m.keys.Preset):
		presets := timeline.Presets()
		if i := int(msg.String()[0] - '1'); i < len(presets) {
			m.err = m.timelines.LoadPreset(active, presets[i].Name)
		}

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// play starts the transport off the update loop, activation may block
func (m Model) play() tea.Cmd {
	t := m.transport
	return func() tea.Msg {
		return playedMsg{err: t.Play(context.Background())}
	}
}

func (m *Model) appendNote(pitch string) {
	if _, err := m.timelines.AppendNote(m.timelines.Active(), pitch); err != nil {
		m.err = err
		return
	}
	b := m.transport.Backend()
	if a, ok := b.(sequencer.Auditioner); ok && b.Ready() {
		a.Audition(pitch)
	}
}

func (m *Model) setTempo(bpm int) {
	bpm = m.transport.SetTempo(bpm)
	m.persist(func(c *config.Config) { c.Tempo = bpm })
}

func (m *Model) persist(fn func(c *config.Config)) {
	if m.autosave != nil {
		m.autosave.Update(fn)
	}
}

func (m Model) nextTimeline(active string) string {
	snap := m.timelines.Snapshot()
	for i, t := range snap {
		if t.ID == active {
			return snap[(i+1)%len(snap)].ID
		}
	}
	return active
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" GANGSA "))
	s.WriteString("\n")
	s.WriteString(m.viewStatus())
	s.WriteString("\n\n")
	s.WriteString(m.viewPalette())
	s.WriteString("\n\n")
	s.WriteString(boxStyle.Render(m.viewGrid()))
	s.WriteString("\n")
	if m.err != nil {
		s.WriteString(errorStyle.Render("✗ " + m.err.Error()))
		s.WriteString("\n")
	}
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func (m Model) viewStatus() string {
	state := m.transport.State().String()
	if m.activating {
		state = m.spinner.View() + " starting audio"
	}
	loop := "off"
	if m.transport.Loop() {
		loop = "on"
	}
	step := "-"
	if m.pos.Playing() {
		step = fmt.Sprintf("%d/%d", m.pos.Step+1, m.pos.Length)
	}
	return statusStyle.Render(fmt.Sprintf("%s • %d BPM • loop %s • step %s",
		state, m.transport.Tempo(), loop, step))
}

func (m Model) viewPalette() string {
	var keys, names []string
	for i, def := range timeline.Palette {
		style := lowStyle
		if def.Type == timeline.NoteHigh {
			style = highStyle
		}
		keys = append(keys, style.Render(fmt.Sprintf("%-5s", string(paletteKeys[i]))))
		names = append(names, style.Render(fmt.Sprintf("%-5s", def.Name)))
	}
	return strings.Join(keys, "") + "\n" + strings.Join(names, "")
}

func (m Model) viewGrid() string {
	width := m.timelines.MaxSteps()
	active := m.timelines.Active()

	var rows []string
	for _, t := range m.timelines.Snapshot() {
		marker := "  "
		if t.ID == active {
			marker = "▸ "
		}
		var row strings.Builder
		row.WriteString(marker)
		for step := 0; step < width; step++ {
			row.WriteString(m.cell(t, step))
		}
		line := row.String()
		if t.Muted {
			line = mutedStyle.Render(line)
		}
		rows = append(rows, line)
	}
	return strings.Join(rows, "\n")
}

func (m Model) cell(t timeline.Timeline, step int) string {
	text, style := " . ", restStyle
	if step < t.Len() {
		switch it := t.Items[step].(type) {
		case timeline.Note:
			text = fmt.Sprintf("%-*s", cellWidth, it.Pitch)
			style = lowStyle
			if it.Type == timeline.NoteHigh {
				style = highStyle
			}
		case timeline.Rest:
			text = " - "
		}
	}
	if m.pos.Playing() && step == m.pos.Step {
		style = playheadStyle
	}
	return style.Render(text)
}

// Run starts the TUI application
func Run(timelines *timeline.Collection, transport *sequencer.Transport, opts ...Option) error {
	p := tea.NewProgram(New(timelines, transport, opts...), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
