package sequencer

import (
	"errors"
	"testing"
	"time"

	"github.com/james-see/gangsa/pkg/timeline"
)

func note(step int, pitch string) timeline.Note {
	def, err := timeline.LookupPitch(pitch)
	if err != nil {
		panic(err)
	}
	n := timeline.NewNote(pitch, def)
	n.Time = timeline.StepToPosition(step).String()
	return n
}

func rest(step int) timeline.Rest {
	return timeline.Rest{ID: "rest", Time: timeline.StepToPosition(step).String()}
}

func TestStepUnit(t *testing.T) {
	tests := []struct {
		name     string
		bpm      int
		expected time.Duration
	}{
		{"slow", 60, 250 * time.Millisecond},
		{"default", 120, 125 * time.Millisecond},
		{"below fast", 179, timeline.StepDuration(179)},
		{"fast", 180, timeline.StepDuration(180) / 2},
		{"faster", 200, 37500 * time.Microsecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StepUnit(tt.bpm); got != tt.expected {
				t.Errorf("StepUnit(%d) = %v, want %v", tt.bpm, got, tt.expected)
			}
		})
	}
}

func TestResolveNoteRestNote(t *testing.T) {
	items := []timeline.Item{note(0, "D4"), rest(1), note(2, "E4")}
	triggers, err := Resolve(items, 120)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(triggers) != 2 {
		t.Fatalf("Resolve() = %d triggers, want 2", len(triggers))
	}
	if triggers[0].Duration != 250*time.Millisecond {
		t.Errorf("first duration = %v, want 250ms", triggers[0].Duration)
	}
	if triggers[1].Duration != DefaultNoteLength(120) {
		t.Errorf("last duration = %v, want an eighth (%v)", triggers[1].Duration, DefaultNoteLength(120))
	}
	if triggers[1].Step != 2 || triggers[1].Pitch != "E4" {
		t.Errorf("second trigger = %+v", triggers[1])
	}
}

func TestResolveFastTempo(t *testing.T) {
	items := []timeline.Item{note(0, "D4"), rest(1), note(2, "E4")}
	triggers, err := Resolve(items, 200)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if triggers[0].Duration != 75*time.Millisecond {
		t.Errorf("first duration at 200 bpm = %v, want 75ms", triggers[0].Duration)
	}
}

func TestResolveAllRests(t *testing.T) {
	items := []timeline.Item{rest(0), rest(1), rest(2)}
	triggers, err := Resolve(items, 120)
	if err != nil || len(triggers) != 0 {
		t.Errorf("Resolve(all rests) = %v, %v; want no triggers", triggers, err)
	}
}

func TestResolveSkipsMalformed(t *testing.T) {
	bad := note(1, "G4")
	bad.Time = "not-a-time"
	items := []timeline.Item{note(0, "D4"), bad, note(2, "A4")}

	triggers, err := Resolve(items, 120)
	if !errors.Is(err, timeline.ErrMalformedPosition) {
		t.Errorf("Resolve() error = %v, want ErrMalformedPosition", err)
	}
	if len(triggers) != 2 {
		t.Fatalf("Resolve() = %d triggers, want 2", len(triggers))
	}
	if triggers[0].Duration != 125*time.Millisecond {
		t.Errorf("duration before malformed note = %v, want 125ms", triggers[0].Duration)
	}
}
