// Package midifile exchanges timelines with Standard MIDI Files
package midifile

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/gangsa/pkg/sequencer"
	"github.com/james-see/gangsa/pkg/timeline"
)

const endMarker = "end"

// MaxSteps is the longest timeline Import and Decode accept
const MaxSteps = 4096

// ErrTooLong is returned for files with timelines longer than MaxSteps
var ErrTooLong = errors.New("timeline too long")

// Codec converts between timelines and SMF data
type Codec struct {
	ticksPerQuarter uint16
	channel         uint8
	velocity        uint8
}

// NewCodec creates a codec with 480 ticks per quarter note
func NewCodec() *Codec {
	return &Codec{
		ticksPerQuarter: 480,
		velocity:        100,
	}
}

func (c *Codec) ticksPerStep() uint32 {
	return uint32(c.ticksPerQuarter) / timeline.StepsPerBeat
}

type event struct {
	tick uint32
	seq  int
	msg  []byte
}

// Export writes one track per unmuted timeline. The first track carries
// tempo and meter. Each timeline track ends with a marker at its last step so
// trailing rests survive a round trip.
func (c *Codec) Export(timelines []timeline.Timeline, bpm int) ([]byte, error) {
	if bpm <= 0 {
		return nil, errors.New("tempo must be positive")
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(c.ticksPerQuarter)

	var meta smf.Track
	meta.Add(0, smf.MetaTempo(float64(bpm)))
	meta.Add(0, smf.MetaMeter(timeline.BeatsPerBar, 4))
	meta.Close(0)
	if err := s.Add(meta); err != nil {
		return nil, fmt.Errorf("failed to add tempo track: %w", err)
	}

	tps := c.ticksPerStep()
	ticksPerSecond := float64(bpm) / 60 * float64(c.ticksPerQuarter)

	for _, t := range timelines {
		if t.Muted {
			continue
		}
		triggers, err := sequencer.Resolve(t.Items, bpm)
		if err != nil {
			return nil, fmt.Errorf("timeline %s: %w", t.ID, err)
		}

		var events []event
		add := func(tick uint32, msg []byte) {
			events = append(events, event{tick: tick, seq: len(events), msg: msg})
		}
		for _, tr := range triggers {
			key, err := timeline.MIDINote(tr.Pitch)
			if err != nil {
				return nil, fmt.Errorf("timeline %s: %w", t.ID, err)
			}
			on := uint32(tr.Step) * tps
			length := uint32(math.Round(tr.Duration.Seconds() * ticksPerSecond))
			add(on, midi.NoteOn(c.channel, key, c.velocity))
			add(on+max(length, 1), midi.NoteOff(c.channel, key))
		}
		add(uint32(t.Len())*tps, smf.MetaMarker(endMarker))

		sort.SliceStable(events, func(i, j int) bool {
			if events[i].tick != events[j].tick {
				return events[i].tick < events[j].tick
			}
			return events[i].seq < events[j].seq
		})

		var track smf.Track
		track.Add(0, smf.MetaTrackSequenceName(t.ID))
		var current uint32
		for _, ev := range events {
			track.Add(ev.tick-current, ev.msg)
			current = ev.tick
		}
		track.Close(0)
		if err := s.Add(track); err != nil {
			return nil, fmt.Errorf("failed to add track: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// Import reads every track with notes as a timeline. Note-ons are quantized
// to the nearest step and snapped to the nearest palette key; empty steps
// become rests. It returns the tempo of the file, 120 when it has none.
func (c *Codec) Import(data []byte) ([]timeline.Timeline, int, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	tpq := c.ticksPerQuarter
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		tpq = mt.Resolution()
	}
	tps := float64(tpq) / timeline.StepsPerBeat
	bpm := 120.0

	var out []timeline.Timeline
	for _, track := range s.Tracks {
		var (
			tick   int64
			name   string
			length int
			notes  = map[int]timeline.NoteDefinition{}
			last   = -1
		)
		for _, ev := range track {
			tick += int64(ev.Delta)
			msg := ev.Message

			var tempo float64
			var text string
			var ch, key, vel uint8
			switch {
			case msg.GetMetaTempo(&tempo):
				if tempo > 0 {
					bpm = tempo
				}
			case msg.GetMetaTrackName(&text):
				name = text
			case msg.GetMetaMarker(&text):
				if text == endMarker {
					length = int(math.Round(float64(tick) / tps))
					if length > MaxSteps {
						return nil, 0, fmt.Errorf("%w: end marker at step %d", ErrTooLong, length)
					}
				}
			case midi.Message(msg).GetNoteStart(&ch, &key, &vel):
				step := int(math.Round(float64(tick) / tps))
				if step >= MaxSteps {
					return nil, 0, fmt.Errorf("%w: note at step %d", ErrTooLong, step)
				}
				if _, taken := notes[step]; !taken {
					notes[step] = timeline.Nearest(key)
				}
				last = max(last, step)
			}
		}
		if last < 0 {
			continue
		}

		t := timeline.Timeline{ID: name}
		if _, err := uuid.Parse(name); err != nil {
			t.ID = uuid.NewString()
		}
		length = max(length, last+1)
		t.Items = make([]timeline.Item, length)
		for i := range t.Items {
			id := uuid.NewString()
			pos := timeline.StepToPosition(i).String()
			if def, ok := notes[i]; ok {
				n := timeline.NewNote(id, def)
				n.Time = pos
				t.Items[i] = n
				continue
			}
			t.Items[i] = timeline.Rest{ID: id, Time: pos}
		}
		out = append(out, t)
	}

	if len(out) == 0 {
		return nil, 0, errors.New("no notes in MIDI data")
	}
	return out, sequencer.ClampTempo(int(math.Round(bpm))), nil
}
