package timeline

import (
	"fmt"
	"sort"
	"strings"
)

// Preset is a built-in phrase. Pattern holds one token per step: a palette
// pitch or "-" for a rest.
type Preset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Pattern     string `json:"pattern"`
}

var presets = map[string]Preset{
	"selisir": {
		Name:        "selisir",
		Description: "ascending and descending run through the selisir scale",
		Pattern:     "D4 E4 G4 A4 C5 D5 E5 G5 A5 C6 A5 G5 E5 D5 C5 A4",
	},
	"gilak-pembuka": {
		Name:        "gilak-pembuka",
		Description: "opening gilak figure",
		Pattern:     "D5 - E5 D5 - C5 A4 - G4 A4 C5 - D5 - E5 G5",
	},
	"gilak-penutup": {
		Name:        "gilak-penutup",
		Description: "closing gilak figure ending on the gong tone",
		Pattern:     "G5 E5 D5 - C5 D5 E5 - A4 C5 D5 - E4 - D4 -",
	},
}

// Presets lists the built-in phrases sorted by name
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupPreset finds a preset by name
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// Len returns the number of steps in the preset
func (p Preset) Len() int {
	return len(strings.Fields(p.Pattern))
}

// items builds fresh items for the pattern; unknown tokens become rests
func (p Preset) items() []Item {
	tokens := strings.Fields(p.Pattern)
	items := make([]Item, 0, len(tokens))
	for _, tok := range tokens {
		def, err := LookupPitch(tok)
		if tok == "-" || err != nil {
			items = append(items, Rest{ID: newID()})
			continue
		}
		items = append(items, NewNote(newID(), def))
	}
	return retime(items)
}
