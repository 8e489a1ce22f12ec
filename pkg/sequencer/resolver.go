package sequencer

import (
	"errors"
	"fmt"
	"time"

	"github.com/james-see/gangsa/pkg/timeline"
)

// FastTempo is the tempo from which notes are measured in thirty-seconds
const FastTempo = 180

// Trigger is one resolved note of a timeline
type Trigger struct {
	Index    int // position in the item list
	Step     int
	Time     string
	Pitch    string
	Name     string
	Duration time.Duration
}

// StepUnit is the length one step of distance contributes to a note
func StepUnit(bpm int) time.Duration {
	if bpm >= FastTempo {
		return timeline.StepDuration(bpm) / 2
	}
	return timeline.StepDuration(bpm)
}

// DefaultNoteLength is the length of the last note of a timeline: an eighth
func DefaultNoteLength(bpm int) time.Duration {
	return 2 * timeline.StepDuration(bpm)
}

// Resolve computes the sounding length of every note. A note lasts until the
// next note, rests included in the distance. Notes whose time does not parse
// are skipped and reported in the returned error; the other triggers are
// still returned.
func Resolve(items []timeline.Item, bpm int) ([]Trigger, error) {
	var noteIdx []int
	for i, it := range items {
		if !timeline.IsRest(it) {
			noteIdx = append(noteIdx, i)
		}
	}

	triggers := make([]Trigger, 0, len(noteIdx))
	var errs []error
	for k, i := range noteIdx {
		n, ok := items[i].(timeline.Note)
		if !ok {
			continue
		}
		p, err := timeline.ParsePosition(n.Time)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %s: %w", n.ID, err))
			continue
		}
		d := DefaultNoteLength(bpm)
		if k+1 < len(noteIdx) {
			d = time.Duration(noteIdx[k+1]-i) * StepUnit(bpm)
		}
		triggers = append(triggers, Trigger{
			Index:    i,
			Step:     timeline.PositionToStep(p),
			Time:     n.Time,
			Pitch:    n.Pitch,
			Name:     n.Name,
			Duration: d,
		})
	}
	return triggers, errors.Join(errs...)
}
