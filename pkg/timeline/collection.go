package timeline

import (
	"sync"

	"github.com/google/uuid"
)

// MinDisplaySteps is the narrowest grid an editor shows
const MinDisplaySteps = 16

// Collection is the editable set of timelines. It is safe for concurrent use;
// readers get copies through Snapshot.
type Collection struct {
	mu        sync.RWMutex
	timelines []Timeline
	active    string
}

// NewCollection creates a collection with one empty, active timeline
func NewCollection() *Collection {
	c := &Collection{}
	c.AddTimeline()
	return c
}

func newID() string {
	return uuid.NewString()
}

// Snapshot returns a deep copy of every timeline
func (c *Collection) Snapshot() []Timeline {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Timeline, len(c.timelines))
	for i, t := range c.timelines {
		out[i] = t.Clone()
	}
	return out
}

// Get returns a copy of one timeline
func (c *Collection) Get(timelineID string) (Timeline, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.index(timelineID)
	if i < 0 {
		return Timeline{}, ErrTimelineNotFound
	}
	return c.timelines[i].Clone(), nil
}

func (c *Collection) index(timelineID string) int {
	for i, t := range c.timelines {
		if t.ID == timelineID {
			return i
		}
	}
	return -1
}

// AddTimeline appends an empty timeline and makes it active
func (c *Collection) AddTimeline() Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Timeline{ID: newID(), Items: []Item{}}
	c.timelines = append(c.timelines, t)
	c.active = t.ID
	return t.Clone()
}

// RemoveTimeline deletes a timeline. When the active timeline is removed the
// first remaining one becomes active.
func (c *Collection) RemoveTimeline(timelineID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(timelineID)
	if i < 0 {
		return ErrTimelineNotFound
	}
	c.timelines = append(c.timelines[:i:i], c.timelines[i+1:]...)
	if c.active == timelineID {
		c.active = ""
		if len(c.timelines) > 0 {
			c.active = c.timelines[0].ID
		}
	}
	return nil
}

// ClearTimeline removes every item of a timeline
func (c *Collection) ClearTimeline(timelineID string) error {
	return c.update(timelineID, func(t *Timeline) error {
		t.Items = []Item{}
		return nil
	})
}

// ToggleMute flips the mute flag and returns the new value
func (c *Collection) ToggleMute(timelineID string) (bool, error) {
	var muted bool
	err := c.update(timelineID, func(t *Timeline) error {
		t.Muted = !t.Muted
		muted = t.Muted
		return nil
	})
	return muted, err
}

// SetMuted sets the mute flag
func (c *Collection) SetMuted(timelineID string, muted bool) error {
	return c.update(timelineID, func(t *Timeline) error {
		t.Muted = muted
		return nil
	})
}

// AppendNote adds a palette note to the end of a timeline
func (c *Collection) AppendNote(timelineID, pitch string) (Note, error) {
	def, err := LookupPitch(pitch)
	if err != nil {
		return Note{}, err
	}
	var n Note
	err = c.update(timelineID, func(t *Timeline) error {
		n = NewNote(newID(), def)
		n.Time = StepToPosition(len(t.Items)).String()
		t.Items = append(t.Items, n)
		return nil
	})
	return n, err
}

// AppendRest adds a rest to the end of a timeline
func (c *Collection) AppendRest(timelineID string) (Rest, error) {
	var r Rest
	err := c.update(timelineID, func(t *Timeline) error {
		r = Rest{ID: newID(), Time: StepToPosition(len(t.Items)).String()}
		t.Items = append(t.Items, r)
		return nil
	})
	return r, err
}

// RemoveItem deletes one item; later items shift one step earlier
func (c *Collection) RemoveItem(timelineID, itemID string) error {
	return c.update(timelineID, func(t *Timeline) error {
		i := t.indexOf(itemID)
		if i < 0 {
			return ErrItemNotFound
		}
		t.Items = append(t.Items[:i:i], t.Items[i+1:]...)
		return nil
	})
}

// RemoveLast deletes the last item of a timeline. It is a no-op on an empty timeline.
func (c *Collection) RemoveLast(timelineID string) error {
	return c.update(timelineID, func(t *Timeline) error {
		if len(t.Items) > 0 {
			t.Items = t.Items[:len(t.Items)-1]
		}
		return nil
	})
}

// MoveItem moves itemID so it sits before targetID. An empty targetID moves
// the item to the end. Moving an item onto itself changes nothing.
func (c *Collection) MoveItem(timelineID, itemID, targetID string) error {
	return c.update(timelineID, func(t *Timeline) error {
		from := t.indexOf(itemID)
		if from < 0 {
			return ErrItemNotFound
		}
		target := -1
		if targetID != "" {
			target = t.indexOf(targetID)
			if target < 0 {
				return ErrItemNotFound
			}
		}
		if target == from {
			return nil
		}
		t.Items = move(t.Items, from, target)
		return nil
	})
}

// LoadPreset replaces the contents of a timeline with a built-in phrase
func (c *Collection) LoadPreset(timelineID, name string) error {
	p, err := LookupPreset(name)
	if err != nil {
		return err
	}
	return c.update(timelineID, func(t *Timeline) error {
		t.Items = p.items()
		return nil
	})
}

// Replace swaps in a whole timeline set, as after an import. Items are
// retimed and missing ids are generated. The first timeline becomes active.
func (c *Collection) Replace(timelines []Timeline) {
	next := make([]Timeline, len(timelines))
	for i, t := range timelines {
		t = t.Clone()
		if t.ID == "" {
			t.ID = newID()
		}
		for j, it := range t.Items {
			if IDOf(it) != "" {
				continue
			}
			switch v := it.(type) {
			case Note:
				v.ID = newID()
				t.Items[j] = v
			case Rest:
				v.ID = newID()
				t.Items[j] = v
			}
		}
		t.Items = retime(t.Items)
		next[i] = t
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.timelines = next
	c.active = ""
	if len(next) > 0 {
		c.active = next[0].ID
	}
}

// Active returns the id of the timeline keyboard edits go to
func (c *Collection) Active() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// SetActive selects the timeline keyboard edits go to
func (c *Collection) SetActive(timelineID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index(timelineID) < 0 {
		return ErrTimelineNotFound
	}
	c.active = timelineID
	return nil
}

// MaxSteps is the grid width needed to show every timeline
func (c *Collection) MaxSteps() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := MinDisplaySteps
	for _, t := range c.timelines {
		n = max(n, len(t.Items))
	}
	return n
}

// update applies fn to a copy of the timeline and commits it only when fn
// succeeds, so a rejected edit leaves the collection unchanged.
func (c *Collection) update(timelineID string, fn func(t *Timeline) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(timelineID)
	if i < 0 {
		return ErrTimelineNotFound
	}
	t := c.timelines[i].Clone()
	if err := fn(&t); err != nil {
		return err
	}
	t.Items = retime(t.Items)
	c.timelines[i] = t
	return nil
}
