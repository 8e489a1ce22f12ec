// Package timeline provides the gangsa note palette, the quantized step grid
// and the editable set of timelines that the sequencer plays.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NoteType is the register of a gangsa key
type NoteType string

const (
	NoteLow  NoteType = "low"
	NoteHigh NoteType = "high"
)

// NoteDefinition is one key of the palette
type NoteDefinition struct {
	Name  string   `json:"name"`
	Pitch string   `json:"pitch"` // scientific pitch notation, e.g. "D4"
	Type  NoteType `json:"type"`
}

// ErrUnknownPitch is returned when a pitch string cannot be parsed or is not in the palette
var ErrUnknownPitch = errors.New("unknown pitch")

// Palette is the fixed set of ten gangsa keys, low register first
var Palette = []NoteDefinition{
	{Name: "Dong", Pitch: "D4", Type: NoteLow},
	{Name: "Deng", Pitch: "E4", Type: NoteLow},
	{Name: "Dung", Pitch: "G4", Type: NoteLow},
	{Name: "Dang", Pitch: "A4", Type: NoteLow},
	{Name: "Ding", Pitch: "C5", Type: NoteLow},
	{Name: "Dong", Pitch: "D5", Type: NoteHigh},
	{Name: "Deng", Pitch: "E5", Type: NoteHigh},
	{Name: "Dung", Pitch: "G5", Type: NoteHigh},
	{Name: "Dang", Pitch: "A5", Type: NoteHigh},
	{Name: "Ding", Pitch: "C6", Type: NoteHigh},
}

// LookupPitch returns the palette entry for a pitch
func LookupPitch(pitch string) (NoteDefinition, error) {
	for _, def := range Palette {
		if strings.EqualFold(def.Pitch, pitch) {
			return def, nil
		}
	}
	return NoteDefinition{}, fmt.Errorf("%w: %q", ErrUnknownPitch, pitch)
}

var semitones = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// MIDINote converts scientific pitch notation to a MIDI note number (C4 = 60)
func MIDINote(pitch string) (uint8, error) {
	p := strings.TrimSpace(pitch)
	if len(p) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPitch, pitch)
	}
	base, ok := semitones[strings.ToUpper(p[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPitch, pitch)
	}
	rest := p[1:]
	switch rest[0] {
	case '#':
		base++
		rest = rest[1:]
	case 'b':
		base--
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPitch, pitch)
	}
	n := (octave+1)*12 + base
	if n < 0 || n > 127 {
		return 0, fmt.Errorf("%w: %q out of MIDI range", ErrUnknownPitch, pitch)
	}
	return uint8(n), nil
}

// Frequency returns the equal-tempered frequency of a pitch in Hz (A4 = 440)
func Frequency(pitch string) (float64, error) {
	n, err := MIDINote(pitch)
	if err != nil {
		return 0, err
	}
	return 440 * math.Pow(2, float64(int(n)-69)/12), nil
}

// Nearest returns the palette entry closest to a MIDI note.
// Ties resolve to the lower key.
func Nearest(note uint8) NoteDefinition {
	best := Palette[0]
	bestDist := math.MaxInt
	for _, def := range Palette {
		n, err := MIDINote(def.Pitch)
		if err != nil {
			continue
		}
		d := int(n) - int(note)
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = def, d
		}
	}
	return best
}
