package timeline

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Grid resolution. Only 4/4 with sixteenth steps is supported.
const (
	StepsPerBeat = 4
	BeatsPerBar  = 4
	StepsPerBar  = StepsPerBeat * BeatsPerBar
)

// ErrMalformedPosition is returned for musical positions that are not "bar:beat:sixteenth"
var ErrMalformedPosition = errors.New("malformed musical position")

// Position is a musical position on the step grid
type Position struct {
	Bar       int
	Beat      int
	Sixteenth int
}

// StepToPosition converts a step index to its bar:beat:sixteenth position
func StepToPosition(step int) Position {
	return Position{
		Bar:       step / StepsPerBar,
		Beat:      (step / StepsPerBeat) % BeatsPerBar,
		Sixteenth: step % StepsPerBeat,
	}
}

// PositionToStep converts a position back to a step index.
// Beats and sixteenths beyond their bar are carried, so "0:5:0" is step 20.
func PositionToStep(p Position) int {
	return p.Bar*StepsPerBar + p.Beat*StepsPerBeat + p.Sixteenth
}

// String formats the position as "bar:beat:sixteenth"
func (p Position) String() string {
	return fmt.Sprintf("%d:%d:%d", p.Bar, p.Beat, p.Sixteenth)
}

// ParsePosition parses "bar:beat:sixteenth". A fractional sixteenth, as a
// running clock reports it, is floored.
func ParsePosition(s string) (Position, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return Position{}, fmt.Errorf("%w: %q", ErrMalformedPosition, s)
	}
	bar, err := strconv.Atoi(parts[0])
	if err != nil || bar < 0 {
		return Position{}, fmt.Errorf("%w: %q", ErrMalformedPosition, s)
	}
	beat, err := strconv.Atoi(parts[1])
	if err != nil || beat < 0 {
		return Position{}, fmt.Errorf("%w: %q", ErrMalformedPosition, s)
	}
	sixteenth, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || sixteenth < 0 || math.IsInf(sixteenth, 0) || math.IsNaN(sixteenth) {
		return Position{}, fmt.Errorf("%w: %q", ErrMalformedPosition, s)
	}
	return Position{Bar: bar, Beat: beat, Sixteenth: int(math.Floor(sixteenth))}, nil
}

// StepDuration is the length of one sixteenth step at the given tempo
func StepDuration(bpm int) time.Duration {
	if bpm <= 0 {
		return 0
	}
	return time.Minute / time.Duration(bpm*StepsPerBeat)
}
