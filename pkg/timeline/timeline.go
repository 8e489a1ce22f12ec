package timeline

import (
	"errors"
	"fmt"
)

// Editing errors. Missing ids wrap ErrInvalidMutation so callers can treat
// every rejected edit the same way.
var (
	ErrInvalidMutation  = errors.New("invalid mutation")
	ErrTimelineNotFound = fmt.Errorf("%w: timeline not found", ErrInvalidMutation)
	ErrItemNotFound     = fmt.Errorf("%w: item not found", ErrInvalidMutation)
	ErrUnknownPreset    = errors.New("unknown preset")
)

// Timeline is one track of items played in parallel with the others
type Timeline struct {
	ID    string
	Items []Item
	Muted bool
}

// Len returns the number of steps the timeline occupies
func (t Timeline) Len() int {
	return len(t.Items)
}

// NoteCount returns the number of sounding items
func (t Timeline) NoteCount() int {
	n := 0
	for _, it := range t.Items {
		if !IsRest(it) {
			n++
		}
	}
	return n
}

// Clone returns a copy that shares no backing array with t
func (t Timeline) Clone() Timeline {
	items := make([]Item, len(t.Items))
	copy(items, t.Items)
	t.Items = items
	return t
}

func (t Timeline) indexOf(itemID string) int {
	for i, it := range t.Items {
		if IDOf(it) == itemID {
			return i
		}
	}
	return -1
}

// retime rewrites every item time from its index
func retime(items []Item) []Item {
	for i, it := range items {
		items[i] = withTime(it, StepToPosition(i).String())
	}
	return items
}

// move removes the item at from and inserts it before the item that was at
// target in the original order. A target of -1 appends to the end.
func move(items []Item, from, target int) []Item {
	moved := items[from]
	rest := make([]Item, 0, len(items))
	rest = append(rest, items[:from]...)
	rest = append(rest, items[from+1:]...)

	at := len(rest)
	switch {
	case target < 0:
	case target < from:
		at = target
	default:
		at = target - 1
	}
	out := make([]Item, 0, len(items))
	out = append(out, rest[:at]...)
	out = append(out, moved)
	out = append(out, rest[at:]...)
	return out
}
