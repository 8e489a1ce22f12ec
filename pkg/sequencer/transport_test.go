package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/james-see/gangsa/pkg/clock"
	"github.com/james-see/gangsa/pkg/timeline"
)

const step = 125 * time.Millisecond

type fired struct {
	pitch    string
	duration time.Duration
	at       time.Duration
}

// fakeBackend records triggered notes; the test advances its clock by hand
type fakeBackend struct {
	clk   *clock.Clock
	mu    sync.Mutex
	ready bool
	notes []fired
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{clk: clock.New(DefaultTempo), ready: true}
}

func (b *fakeBackend) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func (b *fakeBackend) TriggerNote(pitch string, duration, at time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notes = append(b.notes, fired{pitch, duration, at})
}

func (b *fakeBackend) Clock() *clock.Clock { return b.clk }

func (b *fakeBackend) played() []fired {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]fired(nil), b.notes...)
}

// lazyBackend becomes ready on Activate
type lazyBackend struct {
	*fakeBackend
	activations int
}

func (b *lazyBackend) Activate(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activations++
	b.ready = true
	return nil
}

func collectionWith(t *testing.T, pitches ...string) *timeline.Collection {
	t.Helper()
	c := timeline.NewCollection()
	for _, p := range pitches {
		var err error
		if p == "-" {
			_, err = c.AppendRest(c.Active())
		} else {
			_, err = c.AppendNote(c.Active(), p)
		}
		if err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func TestPlayTriggersNotes(t *testing.T) {
	b := newFakeBackend()
	c := collectionWith(t, "D4", "-", "E4")
	tr := NewTransport(b, c)

	if err := tr.Play(context.Background()); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if tr.State() != Playing {
		t.Fatal("State() != Playing after Play")
	}
	for i := 0; i < 3; i++ {
		b.clk.Advance(step)
	}

	notes := b.played()
	if len(notes) != 2 {
		t.Fatalf("fired %d notes, want 2", len(notes))
	}
	if notes[0].pitch != "D4" || notes[0].at != 0 || notes[0].duration != 2*step {
		t.Errorf("first note = %+v", notes[0])
	}
	if notes[1].pitch != "E4" || notes[1].at != 2*step {
		t.Errorf("second note = %+v", notes[1])
	}
	if got := tr.Publisher().Step(); got != 2 {
		t.Errorf("current step = %d, want 2", got)
	}
}

func TestPlayNotReady(t *testing.T) {
	b := newFakeBackend()
	b.ready = false
	tr := NewTransport(b, collectionWith(t, "D4"))
	if err := tr.Play(context.Background()); !errors.Is(err, ErrBackendNotReady) {
		t.Errorf("Play() error = %v, want ErrBackendNotReady", err)
	}
	if tr.State() != Stopped {
		t.Error("transport left Stopped")
	}
}

func TestPlayActivatesBackend(t *testing.T) {
	b := &lazyBackend{fakeBackend: newFakeBackend()}
	b.ready = false
	tr := NewTransport(b, collectionWith(t, "D4"))
	if err := tr.Play(context.Background()); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if b.activations != 1 || tr.State() != Playing {
		t.Errorf("activations = %d, state = %s", b.activations, tr.State())
	}
}

func TestPlayEmptyProgram(t *testing.T) {
	b := newFakeBackend()
	tr := NewTransport(b, timeline.NewCollection())
	if err := tr.Play(context.Background()); !errors.Is(err, ErrEmptyProgram) {
		t.Errorf("Play() error = %v, want ErrEmptyProgram", err)
	}
	if tr.State() != Stopped {
		t.Error("empty play left Stopped")
	}
	if b.clk.Running() {
		t.Error("clock started for empty program")
	}
	if b.clk.Pending() != 0 {
		t.Errorf("%d callbacks scheduled for empty program", b.clk.Pending())
	}
}

func TestPlayWhilePlayingIsNoop(t *testing.T) {
	b := newFakeBackend()
	tr := NewTransport(b, collectionWith(t, "D4", "E4"))
	tr.Play(context.Background())
	prog := tr.Program()
	if err := tr.Play(context.Background()); err != nil {
		t.Fatalf("second Play() error: %v", err)
	}
	if tr.Program() != prog {
		t.Error("second Play() recompiled the program")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	b := newFakeBackend()
	tr := NewTransport(b, collectionWith(t, "D4", "E4"))
	tr.Stop()
	tr.Play(context.Background())
	b.clk.Advance(step)
	prog := tr.Program()

	tr.Stop()
	tr.Stop()

	if tr.State() != Stopped {
		t.Error("State() != Stopped")
	}
	if !prog.Disposed() {
		t.Error("program not disposed")
	}
	if b.clk.Pending() != 0 {
		t.Errorf("%d callbacks left after Stop", b.clk.Pending())
	}
	if tr.PlaybackState().CurrentStep != -1 {
		t.Errorf("CurrentStep = %d, want -1", tr.PlaybackState().CurrentStep)
	}
	select {
	case <-tr.Done():
	default:
		t.Error("Done() not closed after Stop")
	}
}

func TestStopKeepsSettings(t *testing.T) {
	b := newFakeBackend()
	tr := NewTransport(b, collectionWith(t, "D4"), WithTempo(90), WithLoop(true))
	tr.Play(context.Background())
	tr.Stop()
	if tr.Tempo() != 90 || !tr.Loop() {
		t.Errorf("after Stop tempo = %d loop = %v", tr.Tempo(), tr.Loop())
	}
}

func TestAutoStop(t *testing.T) {
	b := newFakeBackend()
	c := collectionWith(t, "D4", "E4", "G4", "A4", "C5", "D5", "E5", "G5")
	tr := NewTransport(b, c)
	tr.Play(context.Background())
	done := tr.Done()

	b.clk.Advance(1100 * time.Millisecond)
	if tr.State() != Playing {
		t.Fatal("stopped before 8 steps and the grace step")
	}
	b.clk.Advance(50 * time.Millisecond)
	if tr.State() != Stopped {
		t.Fatal("did not stop after 8 steps and the grace step")
	}
	select {
	case <-done:
	default:
		t.Error("Done() not closed by auto-stop")
	}
	if got := tr.Publisher().Step(); got != -1 {
		t.Errorf("current step = %d after auto-stop, want -1", got)
	}
	if len(b.played()) != 8 {
		t.Errorf("fired %d notes, want 8", len(b.played()))
	}
}

func TestLoopWraps(t *testing.T) {
	b := newFakeBackend()
	tr := NewTransport(b, collectionWith(t, "D4", "E4", "G4", "A4"), WithLoop(true))
	tr.Play(context.Background())

	wrapped := false
	prev := -1
	for i := 0; i < 12; i++ {
		b.clk.Advance(step)
		cur := tr.Publisher().Step()
		if cur >= 4 {
			t.Fatalf("step %d escaped the loop", cur)
		}
		if cur < prev {
			wrapped = true
		}
		prev = cur
	}
	if !wrapped {
		t.Error("step never wrapped")
	}
	if tr.State() != Playing {
		t.Error("looping program stopped")
	}
	if len(b.played()) != 12 {
		t.Errorf("fired %d notes over three loops, want 12", len(b.played()))
	}
}

func TestSetLoopWhilePlaying(t *testing.T) {
	b := newFakeBackend()
	tr := NewTransport(b, collectionWith(t, "D4", "E4"))
	tr.Play(context.Background())
	tr.SetLoop(true)
	b.clk.Advance(2 * time.Second)
	if tr.State() != Playing {
		t.Fatal("loop enabled while playing did not cancel auto-stop")
	}
	tr.SetLoop(false)
	b.clk.Advance(2 * time.Second)
	if tr.State() != Stopped {
		t.Error("loop disabled while playing did not schedule auto-stop")
	}
}

func TestLoopEnabledDuringGraceStep(t *testing.T) {
	b := newFakeBackend()
	tr := NewTransport(b, collectionWith(t, "D4", "E4"))
	tr.Play(context.Background())
	b.clk.Advance(2*step + step/2)
	if tr.State() != Playing {
		t.Fatal("stopped before the grace step ended")
	}

	tr.SetLoop(true)
	for i := 0; i < 40; i++ {
		b.clk.Advance(step)
		if cur := tr.Publisher().Step(); cur >= 2 {
			t.Fatalf("step %d escaped the loop window after %d advances", cur, i+1)
		}
	}
	if tr.State() != Playing {
		t.Error("looping program stopped")
	}
	if n := len(b.played()); n != 2+40 {
		t.Errorf("fired %d notes, want %d", n, 2+40)
	}
}

func TestSetTempo(t *testing.T) {
	b := newFakeBackend()
	tr := NewTransport(b, collectionWith(t, "D4"))
	tests := []struct {
		input    int
		expected int
	}{
		{10, MinTempo},
		{500, MaxTempo},
		{96, 96},
	}
	for _, tt := range tests {
		if got := tr.SetTempo(tt.input); got != tt.expected {
			t.Errorf("SetTempo(%d) = %d, want %d", tt.input, got, tt.expected)
		}
	}

	tr.Play(context.Background())
	tr.SetTempo(60)
	if b.clk.BPM() != 60 {
		t.Errorf("clock BPM = %v after live tempo change, want 60", b.clk.BPM())
	}
}

func TestSnapshotSemantics(t *testing.T) {
	b := newFakeBackend()
	c := collectionWith(t, "D4", "E4")
	tr := NewTransport(b, c, WithLoop(true))
	tr.Play(context.Background())

	c.AppendNote(c.Active(), "G4")
	b.clk.Advance(4 * step)
	for _, n := range b.played() {
		if n.pitch == "G4" {
			t.Fatal("note added during playback was played")
		}
	}

	tr.Stop()
	tr.Play(context.Background())
	b.clk.Advance(3 * step)
	found := false
	for _, n := range b.played() {
		found = found || n.pitch == "G4"
	}
	if !found {
		t.Error("note added during playback missing from next play")
	}
}

func TestMutedTimelineSkippedButCounted(t *testing.T) {
	b := newFakeBackend()
	c := collectionWith(t, "D4")
	muted := c.AddTimeline()
	for _, p := range []string{"E4", "G4", "A4"} {
		c.AppendNote(muted.ID, p)
	}
	c.SetMuted(muted.ID, true)

	tr := NewTransport(b, c)
	tr.Play(context.Background())
	prog := tr.Program()
	if prog.Length != 3 {
		t.Errorf("program length = %d, want 3", prog.Length)
	}
	if len(prog.Events) != 1 {
		t.Errorf("program has %d events, want 1", len(prog.Events))
	}
}

func TestPlaybackState(t *testing.T) {
	b := newFakeBackend()
	tr := NewTransport(b, collectionWith(t, "D4", "E4", "G4"), WithCellWidth(10))
	st := tr.PlaybackState()
	if st.IsPlaying || st.CurrentStep != -1 || st.TempoBPM != DefaultTempo {
		t.Errorf("stopped state = %+v", st)
	}
	tr.Play(context.Background())
	b.clk.Advance(step + step/2)
	st = tr.PlaybackState()
	if !st.IsPlaying || st.CurrentStep != 1 || st.Length != 3 {
		t.Errorf("playing state = %+v", st)
	}
	if st.PlayheadPosition < 10 || st.PlayheadPosition >= 20 {
		t.Errorf("PlayheadPosition = %v, want within step 1", st.PlayheadPosition)
	}
}

func TestToggle(t *testing.T) {
	b := newFakeBackend()
	tr := NewTransport(b, collectionWith(t, "D4"))
	tr.Toggle(context.Background())
	if tr.State() != Playing {
		t.Fatal("Toggle() did not start playback")
	}
	tr.Toggle(context.Background())
	if tr.State() != Stopped {
		t.Error("Toggle() did not stop playback")
	}
}
