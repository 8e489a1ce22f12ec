package timeline

import (
	"encoding/json"
	"fmt"
)

// Item is either a Note or a Rest. The set is closed; switch on the
// concrete type.
type Item interface {
	item()
}

// Note is a sounding item
type Note struct {
	ID    string
	Time  string
	Name  string
	Pitch string
	Type  NoteType
}

// Rest is a silent item that still occupies a step
type Rest struct {
	ID   string
	Time string
}

func (Note) item() {}
func (Rest) item() {}

// IDOf returns the id of an item
func IDOf(it Item) string {
	switch v := it.(type) {
	case Note:
		return v.ID
	case Rest:
		return v.ID
	}
	return ""
}

// TimeOf returns the musical position string of an item
func TimeOf(it Item) string {
	switch v := it.(type) {
	case Note:
		return v.Time
	case Rest:
		return v.Time
	}
	return ""
}

// IsRest reports whether the item is a rest
func IsRest(it Item) bool {
	_, ok := it.(Rest)
	return ok
}

func withTime(it Item, t string) Item {
	switch v := it.(type) {
	case Note:
		v.Time = t
		return v
	case Rest:
		v.Time = t
		return v
	}
	return it
}

// NewNote builds a note item from a palette entry
func NewNote(id string, def NoteDefinition) Note {
	return Note{ID: id, Name: def.Name, Pitch: def.Pitch, Type: def.Type}
}

// itemJSON is the wire form shared by notes and rests; rests use type "rest"
type itemJSON struct {
	ID    string `json:"id"`
	Time  string `json:"time"`
	Type  string `json:"type"`
	Name  string `json:"name,omitempty"`
	Pitch string `json:"pitch,omitempty"`
}

const restType = "rest"

func encodeItem(it Item) itemJSON {
	switch v := it.(type) {
	case Note:
		return itemJSON{ID: v.ID, Time: v.Time, Type: string(v.Type), Name: v.Name, Pitch: v.Pitch}
	case Rest:
		return itemJSON{ID: v.ID, Time: v.Time, Type: restType}
	}
	return itemJSON{}
}

func decodeItem(j itemJSON) (Item, error) {
	switch j.Type {
	case restType:
		return Rest{ID: j.ID, Time: j.Time}, nil
	case string(NoteLow), string(NoteHigh):
		def, err := LookupPitch(j.Pitch)
		if err != nil {
			return nil, err
		}
		n := NewNote(j.ID, def)
		n.Time = j.Time
		return n, nil
	default:
		return nil, fmt.Errorf("unknown item type %q", j.Type)
	}
}

// MarshalJSON encodes the timeline with tagged items
func (t Timeline) MarshalJSON() ([]byte, error) {
	items := make([]itemJSON, len(t.Items))
	for i, it := range t.Items {
		items[i] = encodeItem(it)
	}
	return json.Marshal(struct {
		ID    string     `json:"id"`
		Notes []itemJSON `json:"notes"`
		Muted bool       `json:"isMuted"`
	}{t.ID, items, t.Muted})
}

// UnmarshalJSON decodes a timeline and re-derives every item time from its index
func (t *Timeline) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    string     `json:"id"`
		Notes []itemJSON `json:"notes"`
		Muted bool       `json:"isMuted"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	items := make([]Item, 0, len(raw.Notes))
	for _, j := range raw.Notes {
		it, err := decodeItem(j)
		if err != nil {
			return err
		}
		items = append(items, it)
	}
	t.ID = raw.ID
	t.Muted = raw.Muted
	t.Items = retime(items)
	return nil
}
