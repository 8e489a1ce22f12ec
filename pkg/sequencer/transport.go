package sequencer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/constraints"

	"github.com/james-see/gangsa/pkg/clock"
)

// Tempo limits in beats per minute
const (
	MinTempo     = 40
	MaxTempo     = 240
	DefaultTempo = 120
)

// DefaultCellWidth is the width of one grid step in pixels
const DefaultCellWidth = 48

// State is the transport state
type State int

const (
	Stopped State = iota
	Playing
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	default:
		return "stopped"
	}
}

// PlaybackState is the read-only view of the transport
type PlaybackState struct {
	IsPlaying        bool    `json:"isPlaying"`
	CurrentStep      int     `json:"currentStep"`
	TempoBPM         int     `json:"tempoBPM"`
	IsLooping        bool    `json:"isLooping"`
	PlayheadPosition float64 `json:"playheadPosition"`
	Length           int     `json:"length"`
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampTempo limits bpm to the supported range
func ClampTempo(bpm int) int {
	return clamp(bpm, MinTempo, MaxTempo)
}

// Option configures a Transport
type Option func(*Transport)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithTempo sets the initial tempo
func WithTempo(bpm int) Option {
	return func(t *Transport) { t.tempo = ClampTempo(bpm) }
}

// WithLoop sets the initial loop mode
func WithLoop(loop bool) Option {
	return func(t *Transport) { t.loop = loop }
}

// WithCellWidth sets the grid cell width used for the playhead
func WithCellWidth(w float64) Option {
	return func(t *Transport) {
		if w > 0 {
			t.cellWidth = w
		}
	}
}

// Transport is the play/stop state machine. Control calls are serialized;
// Stop may be called from clock callbacks.
type Transport struct {
	mu        sync.Mutex
	backend   Backend
	source    Source
	publisher *Publisher
	scheduler *Scheduler
	logger    *zap.Logger

	state     State
	tempo     int
	loop      bool
	cellWidth float64
	program   *Program
	stopAt    clock.Handle
	done      chan struct{}
}

// NewTransport creates a stopped transport
func NewTransport(backend Backend, source Source, opts ...Option) *Transport {
	t := &Transport{
		backend:   backend,
		source:    source,
		publisher: NewPublisher(),
		logger:    zap.NewNop(),
		tempo:     DefaultTempo,
		cellWidth: DefaultCellWidth,
		done:      closedChan(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.scheduler = NewScheduler(backend, t.publisher, t.logger)
	return t
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Play starts the current snapshot from the top. It is a no-op while playing.
func (t *Transport) Play(ctx context.Context) error {
	if a, ok := t.backend.(Activator); ok {
		if err := a.Activate(ctx); err != nil {
			return fmt.Errorf("activate backend: %w", err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Playing {
		return nil
	}
	if !t.backend.Ready() {
		t.logger.Warn("play requested before backend is ready")
		return ErrBackendNotReady
	}

	snap := t.source.Snapshot()
	length := ProgramLength(snap)
	if length == 0 {
		return ErrEmptyProgram
	}

	clk := t.backend.Clock()
	clk.Stop()
	clk.SetTicks(0)
	clk.SetBPM(float64(t.tempo))

	prog, err := t.scheduler.Compile(snap, t.tempo)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	t.program = prog
	t.done = make(chan struct{})
	t.state = Playing
	t.applyLoop()
	clk.Start()

	t.logger.Info("playback started",
		zap.Int("length", length),
		zap.Int("tempo", t.tempo),
		zap.Bool("loop", t.loop),
	)
	return nil
}

// applyLoop sets the loop window or the auto-stop for the running program.
// Must hold t.mu.
func (t *Transport) applyLoop() {
	clk := t.backend.Clock()
	if t.stopAt != 0 {
		clk.Cancel(t.stopAt)
		t.stopAt = 0
	}
	length := int64(t.program.Length)
	if t.loop {
		clk.SetLoop(0, length*clock.TicksPerStep)
		return
	}
	clk.ClearLoop()
	prog := t.program
	t.stopAt = clk.ScheduleOnce(func(clock.Event) {
		t.autoStop(prog)
	}, (length+1)*clock.TicksPerStep)
}

func (t *Transport) autoStop(prog *Program) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Playing || t.program != prog {
		return
	}
	t.logger.Info("playback finished")
	t.stopLocked()
}

// Stop ends playback. It is a no-op while stopped.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Playing {
		return
	}
	t.logger.Info("playback stopped")
	t.stopLocked()
}

func (t *Transport) stopLocked() {
	clk := t.backend.Clock()
	clk.Stop()
	if t.stopAt != 0 {
		clk.Cancel(t.stopAt)
		t.stopAt = 0
	}
	if t.program != nil {
		t.program.Dispose()
		t.program = nil
	}
	t.state = Stopped
	t.publisher.Reset()
	close(t.done)
}

// Toggle plays when stopped and stops when playing
func (t *Transport) Toggle(ctx context.Context) error {
	if t.State() == Playing {
		t.Stop()
		return nil
	}
	return t.Play(ctx)
}

// SetTempo clamps bpm to the supported range and applies it live. It
// returns the tempo in effect.
func (t *Transport) SetTempo(bpm int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tempo = ClampTempo(bpm)
	if t.state == Playing {
		t.backend.Clock().SetBPM(float64(t.tempo))
	}
	return t.tempo
}

// Tempo returns the tempo in beats per minute
func (t *Transport) Tempo() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tempo
}

// SetLoop sets the loop mode; a running program switches between looping
// and auto-stop immediately
func (t *Transport) SetLoop(loop bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loop == loop {
		return
	}
	t.loop = loop
	if t.state == Playing {
		t.applyLoop()
	}
}

// Loop returns the loop mode
func (t *Transport) Loop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loop
}

// State returns the transport state
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done returns a channel that is closed when the current run stops. While
// stopped it returns a closed channel.
func (t *Transport) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Program returns the running program, nil while stopped
func (t *Transport) Program() *Program {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.program
}

// Publisher returns the position publisher
func (t *Transport) Publisher() *Publisher {
	return t.publisher
}

// Subscribe streams position updates; call cancel when done
func (t *Transport) Subscribe() (<-chan Position, func()) {
	return t.publisher.Subscribe()
}

// Backend returns the audio backend
func (t *Transport) Backend() Backend {
	return t.backend
}

// PlaybackState returns a consistent view of the transport
func (t *Transport) PlaybackState() PlaybackState {
	t.mu.Lock()
	st := PlaybackState{
		IsPlaying: t.state == Playing,
		TempoBPM:  t.tempo,
		IsLooping: t.loop,
	}
	if t.program != nil {
		st.Length = t.program.Length
	}
	cw := t.cellWidth
	t.mu.Unlock()

	pos := t.publisher.Current()
	st.CurrentStep = pos.Step
	if !st.IsPlaying {
		st.CurrentStep = -1
	}
	if st.IsPlaying {
		st.PlayheadPosition = pos.SmoothPlayhead(t.backend.Clock().Now(), cw)
	}
	return st
}
