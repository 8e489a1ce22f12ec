package audio

import (
	"fmt"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"go.uber.org/zap"

	"github.com/james-see/gangsa/pkg/clock"
	"github.com/james-see/gangsa/pkg/sequencer"
	"github.com/james-see/gangsa/pkg/timeline"
)

const defaultVelocity = 100

// MIDIOut is a sequencer backend that sends notes to a MIDI port. Its clock
// must be driven by clock.Run.
type MIDIOut struct {
	mu       sync.Mutex
	send     func(midi.Message) error
	clk      *clock.Clock
	channel  uint8
	velocity uint8
	pending  map[*time.Timer]uint8 // note-off timers and their keys
	closed   bool
	logger   *zap.Logger
}

var (
	_ sequencer.Backend    = (*MIDIOut)(nil)
	_ sequencer.Auditioner = (*MIDIOut)(nil)
)

// MIDIOption configures a MIDIOut
type MIDIOption func(*MIDIOut)

// WithChannel sets the MIDI channel (0-15)
func WithChannel(ch uint8) MIDIOption {
	return func(m *MIDIOut) { m.channel = ch & 0x0F }
}

func WithVelocity(v uint8) MIDIOption {
	return func(m *MIDIOut) { m.velocity = v & 0x7F }
}

func WithMIDILogger(l *zap.Logger) MIDIOption {
	return func(m *MIDIOut) { m.logger = l }
}

// NewMIDIOut creates a backend that writes with send
func NewMIDIOut(send func(midi.Message) error, clk *clock.Clock, opts ...MIDIOption) *MIDIOut {
	m := &MIDIOut{
		send:     send,
		clk:      clk,
		velocity: defaultVelocity,
		pending:  make(map[*time.Timer]uint8),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OpenMIDIOut opens the named output port, or the first one when port is
// empty. A MIDI driver must be registered.
func OpenMIDIOut(port string, clk *clock.Clock, opts ...MIDIOption) (*MIDIOut, error) {
	var (
		out drivers.Out
		err error
	)
	if port == "" {
		out, err = midi.OutPort(0)
	} else {
		out, err = midi.FindOutPort(port)
	}
	if err != nil {
		return nil, fmt.Errorf("find MIDI port %q: %w", port, err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open MIDI port %q: %w", port, err)
	}
	return NewMIDIOut(send, clk, opts...), nil
}

// ListMIDIPorts returns the names of the available output ports
func ListMIDIPorts() []string {
	outs := midi.GetOutPorts()
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names
}

func (m *MIDIOut) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

func (m *MIDIOut) Clock() *clock.Clock {
	return m.clk
}

// TriggerNote sends note-on now and note-off after duration. The clock
// callback already runs at the note's time, so at is not used.
func (m *MIDIOut) TriggerNote(pitch string, duration, at time.Duration) {
	key, err := timeline.MIDINote(pitch)
	if err != nil {
		m.logger.Warn("cannot send pitch", zap.String("pitch", pitch), zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	// a repeated key ends its previous note first
	for t, k := range m.pending {
		if k == key {
			t.Stop()
			delete(m.pending, t)
			m.noteOff(key)
		}
	}
	if err := m.send(midi.NoteOn(m.channel, key, m.velocity)); err != nil {
		m.logger.Error("note on failed", zap.Uint8("key", key), zap.Error(err))
		return
	}
	var t *time.Timer
	t = time.AfterFunc(duration, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.pending[t]; !ok {
			return
		}
		delete(m.pending, t)
		m.noteOff(key)
	})
	m.pending[t] = key
}

// Audition previews a pitch for a half note at the clock's tempo
func (m *MIDIOut) Audition(pitch string) {
	m.TriggerNote(pitch, sequencer.AuditionLength(int(m.clk.BPM())), m.clk.Now())
}

// must hold m.mu
func (m *MIDIOut) noteOff(key uint8) {
	if err := m.send(midi.NoteOff(m.channel, key)); err != nil {
		m.logger.Error("note off failed", zap.Uint8("key", key), zap.Error(err))
	}
}

// Pending returns the number of notes still sounding
func (m *MIDIOut) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close sends every outstanding note-off and rejects further notes
func (m *MIDIOut) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for t, key := range m.pending {
		t.Stop()
		m.noteOff(key)
	}
	clear(m.pending)
	return nil
}
