package sequencer

import (
	"sync"
	"time"
)

// Position is the published playback position
type Position struct {
	Step         int           `json:"currentStep"` // -1 when stopped
	Length       int           `json:"length"`
	At           time.Duration `json:"-"` // clock time the step started
	StepDuration time.Duration `json:"-"`
}

// Playing reports whether the position belongs to a running program
func (p Position) Playing() bool {
	return p.Step >= 0
}

// Fraction returns how far into the current step now is, in [0, 1)
func (p Position) Fraction(now time.Duration) float64 {
	if p.Step < 0 || p.StepDuration <= 0 || now <= p.At {
		return 0
	}
	f := float64(now-p.At) / float64(p.StepDuration)
	if f >= 1 {
		return 0.999
	}
	return f
}

// Playhead returns the pixel offset of the step on a grid of cellWidth columns
func (p Position) Playhead(cellWidth float64) float64 {
	if p.Step < 0 {
		return 0
	}
	return float64(p.Step) * cellWidth
}

// SmoothPlayhead is Playhead interpolated into the step by clock time now
func (p Position) SmoothPlayhead(now time.Duration, cellWidth float64) float64 {
	if p.Step < 0 {
		return 0
	}
	return (float64(p.Step) + p.Fraction(now)) * cellWidth
}

// Publisher holds the current step. It has a single writer, the step tick of
// the running program; readers poll it or subscribe.
type Publisher struct {
	mu   sync.RWMutex
	pos  Position
	subs map[chan Position]struct{}
}

// NewPublisher creates a publisher in the stopped position
func NewPublisher() *Publisher {
	return &Publisher{
		pos:  Position{Step: -1},
		subs: make(map[chan Position]struct{}),
	}
}

// Publish records a new step and notifies subscribers
func (p *Publisher) Publish(step, length int, at, stepDur time.Duration) {
	p.set(Position{Step: step, Length: length, At: at, StepDuration: stepDur})
}

// Reset returns to the stopped position
func (p *Publisher) Reset() {
	p.set(Position{Step: -1})
}

func (p *Publisher) set(pos Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = pos
	for ch := range p.subs {
		// last value wins: drop a stale unread value
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- pos:
		default:
		}
	}
}

// Step returns the current step, -1 when stopped
func (p *Publisher) Step() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos.Step
}

// Current returns the current position
func (p *Publisher) Current() Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos
}

// Subscribe returns a channel that always holds the latest position and a
// func that ends the subscription
func (p *Publisher) Subscribe() (<-chan Position, func()) {
	ch := make(chan Position, 1)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	ch <- p.pos
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			p.mu.Unlock()
		})
	}
}
