package sequencer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/james-see/gangsa/pkg/clock"
	"github.com/james-see/gangsa/pkg/timeline"
)

// ScheduledEvent is one note bound to the clock by a program
type ScheduledEvent struct {
	Timeline string        `json:"timeline"`
	Time     string        `json:"time"`
	Step     int           `json:"step"`
	Pitch    string        `json:"pitch"`
	Duration time.Duration `json:"duration"`
}

// Program is the set of clock callbacks of one performance
type Program struct {
	clk      *clock.Clock
	handles  []clock.Handle
	Length   int
	Events   []ScheduledEvent
	mu       sync.Mutex
	disposed bool
}

// Dispose cancels every callback of the program. It is safe to call more than once.
func (p *Program) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.disposed = true
	for _, h := range p.handles {
		p.clk.Cancel(h)
	}
	p.handles = nil
}

// whileLive runs fn unless the program is disposed. Dispose waits for a
// running fn, so nothing fn does can land after Dispose returns.
func (p *Program) whileLive(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	fn()
}

// Disposed reports whether Dispose has run
func (p *Program) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// ProgramLength is the number of steps in a performance: the longest
// timeline, muted ones included
func ProgramLength(timelines []timeline.Timeline) int {
	n := 0
	for _, t := range timelines {
		n = max(n, t.Len())
	}
	return n
}

// Scheduler compiles timelines into a Program on the backend's clock
type Scheduler struct {
	backend   Backend
	publisher *Publisher
	logger    *zap.Logger
}

// NewScheduler creates a scheduler
func NewScheduler(backend Backend, publisher *Publisher, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{backend: backend, publisher: publisher, logger: logger}
}

// Compile binds every note of every unmuted timeline to the clock and adds
// the step tick that publishes the current step
func (s *Scheduler) Compile(timelines []timeline.Timeline, bpm int) (*Program, error) {
	if !s.backend.Ready() {
		return nil, ErrBackendNotReady
	}
	clk := s.backend.Clock()
	prog := &Program{clk: clk, Length: ProgramLength(timelines)}

	for _, t := range timelines {
		if t.Muted {
			continue
		}
		triggers, err := Resolve(t.Items, bpm)
		if err != nil {
			s.logger.Warn("skipping malformed items",
				zap.String("timeline", t.ID),
				zap.Error(err),
			)
		}
		for _, tr := range triggers {
			pitch, dur := tr.Pitch, tr.Duration
			h := clk.Schedule(func(ev clock.Event) {
				s.backend.TriggerNote(pitch, dur, ev.At)
			}, int64(tr.Step)*clock.TicksPerStep)
			prog.handles = append(prog.handles, h)
			prog.Events = append(prog.Events, ScheduledEvent{
				Timeline: t.ID,
				Time:     tr.Time,
				Step:     tr.Step,
				Pitch:    tr.Pitch,
				Duration: tr.Duration,
			})
		}
	}

	tick := clk.ScheduleRepeat(func(ev clock.Event) {
		s.publishStep(prog, ev)
	}, clock.TicksPerStep, 0)
	prog.handles = append(prog.handles, tick)

	s.logger.Debug("compiled program",
		zap.Int("timelines", len(timelines)),
		zap.Int("events", len(prog.Events)),
		zap.Int("length", prog.Length),
		zap.Int("bpm", bpm),
	)
	return prog, nil
}

// publishStep converts the tick of a step event into a step number and
// publishes it while prog is still running
func (s *Scheduler) publishStep(prog *Program, ev clock.Event) {
	p, err := timeline.ParsePosition(clock.FormatTicks(float64(ev.Tick)))
	if err != nil {
		s.logger.Error("bad clock position", zap.Int64("tick", ev.Tick), zap.Error(err))
		return
	}
	stepDur := timeline.StepDuration(int(prog.clk.BPM()))
	prog.whileLive(func() {
		s.publisher.Publish(timeline.PositionToStep(p), prog.Length, ev.At, stepDur)
	})
}
