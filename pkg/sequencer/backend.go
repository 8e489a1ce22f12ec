// Package sequencer turns timelines into clock-bound note triggers and
// drives them through a play/stop transport.
package sequencer

import (
	"context"
	"errors"
	"time"

	"github.com/james-see/gangsa/pkg/clock"
	"github.com/james-see/gangsa/pkg/timeline"
)

var (
	// ErrBackendNotReady is returned when playback is requested before the audio backend can sound
	ErrBackendNotReady = errors.New("audio backend not ready")
	// ErrEmptyProgram is returned when there is nothing to play
	ErrEmptyProgram = errors.New("no notes to play")
)

// Backend produces sound for triggered notes. Every callback of a program is
// bound to the backend's clock.
type Backend interface {
	Ready() bool
	// TriggerNote sounds pitch for duration starting at clock time at
	TriggerNote(pitch string, duration, at time.Duration)
	Clock() *clock.Clock
}

// Activator is implemented by backends that must be started before they are
// ready, such as an audio context that needs a user gesture.
type Activator interface {
	Activate(ctx context.Context) error
}

// Auditioner is implemented by backends that can preview a single pitch
type Auditioner interface {
	Audition(pitch string)
}

// Source supplies the timelines to play
type Source interface {
	Snapshot() []timeline.Timeline
}

// SourceFunc adapts a function to Source
type SourceFunc func() []timeline.Timeline

// Snapshot calls f
func (f SourceFunc) Snapshot() []timeline.Timeline { return f() }

// AuditionLength is how long a palette preview sounds: a half note
func AuditionLength(bpm int) time.Duration {
	return 8 * timeline.StepDuration(bpm)
}
