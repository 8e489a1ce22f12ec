// Package clock provides the musical clock that every scheduled callback of a
// performance is bound to. The clock does not own a goroutine: it is advanced
// by whoever owns real time, either an audio render loop or Run.
package clock

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/james-see/gangsa/pkg/timeline"
)

// Tick resolution
const (
	TicksPerStep = 48
	TicksPerBeat = TicksPerStep * timeline.StepsPerBeat
	TicksPerBar  = TicksPerBeat * timeline.BeatsPerBar
)

// Handle identifies a scheduled callback
type Handle uint64

// Event is passed to a callback when it fires
type Event struct {
	At   time.Duration // clock time the occurrence falls on
	Tick int64         // musical position of the occurrence
}

// Callback is invoked without any clock lock held, so it may call back into
// the clock (including Stop).
type Callback func(Event)

type kind int

const (
	kindPosition kind = iota
	kindRepeat
	kindOnce
)

type entry struct {
	id       Handle
	kind     kind
	tick     int64
	interval int64
	fn       Callback
}

type occurrence struct {
	e    *entry
	tick int64
	at   time.Duration
	seq  int
}

// Clock is a tick-based transport clock with an optional loop window
type Clock struct {
	mu        sync.Mutex
	bpm       float64
	running   bool
	ticks     float64
	now       time.Duration
	loop      bool
	loopStart int64
	loopEnd   int64
	entries   map[Handle]*entry
	next      Handle
	gen       uint64
}

// New creates a stopped clock at the given tempo
func New(bpm float64) *Clock {
	if bpm <= 0 {
		bpm = 120
	}
	return &Clock{
		bpm:     bpm,
		entries: make(map[Handle]*entry),
	}
}

func (c *Clock) add(e *entry) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	e.id = c.next
	c.entries[e.id] = e
	return e.id
}

// Schedule binds fn to a tick. It fires every time the clock passes the
// tick, including each pass of a loop.
func (c *Clock) Schedule(fn Callback, tick int64) Handle {
	return c.add(&entry{kind: kindPosition, tick: tick, fn: fn})
}

// ScheduleRepeat fires fn every interval ticks starting at start
func (c *Clock) ScheduleRepeat(fn Callback, interval, start int64) Handle {
	if interval <= 0 {
		interval = 1
	}
	return c.add(&entry{kind: kindRepeat, tick: start, interval: interval, fn: fn})
}

// ScheduleOnce fires fn the first time the clock passes tick, then forgets it
func (c *Clock) ScheduleOnce(fn Callback, tick int64) Handle {
	return c.add(&entry{kind: kindOnce, tick: tick, fn: fn})
}

// Cancel removes a scheduled callback. Unknown or already fired handles are
// ignored; the return value reports whether anything was removed.
func (c *Clock) Cancel(h Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[h]; !ok {
		return false
	}
	delete(c.entries, h)
	return true
}

// Pending returns the number of registered callbacks
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Start begins advancing musical time from the current position
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
}

// Stop halts the clock and rewinds it to zero. Occurrences already collected
// by an in-flight Advance are dropped.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.ticks = 0
	c.gen++
}

// Running reports whether the clock is advancing
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetBPM changes the tempo; the new rate applies from the next Advance
func (c *Clock) SetBPM(bpm float64) {
	if bpm <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bpm = bpm
}

// BPM returns the tempo
func (c *Clock) BPM() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bpm
}

// SetLoop enables looping over [start, end) ticks
func (c *Clock) SetLoop(start, end int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if end <= start {
		c.loop = false
		return
	}
	c.loop = true
	c.loopStart = start
	c.loopEnd = end
}

// ClearLoop disables looping
func (c *Clock) ClearLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop = false
}

// Looping reports whether a loop window is active
func (c *Clock) Looping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop
}

// SetTicks moves the musical position
func (c *Clock) SetTicks(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = float64(t)
}

// Ticks returns the current musical position in ticks
func (c *Clock) Ticks() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Step returns the sixteenth step the position falls in
func (c *Clock) Step() int {
	return int(c.Ticks()) / TicksPerStep
}

// Now returns the clock time: the total duration passed to Advance
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// FormatTicks formats a tick position as "bar:beat:sixteenth"
func FormatTicks(ticks float64) string {
	step := int(ticks) / TicksPerStep
	p := timeline.StepToPosition(step)
	six := float64(p.Sixteenth) + (ticks-float64(step*TicksPerStep))/TicksPerStep
	return fmt.Sprintf("%d:%d:%s", p.Bar, p.Beat, strconv.FormatFloat(six, 'f', -1, 64))
}

// TickDuration returns the length of one tick at the tempo
func TickDuration(bpm float64) time.Duration {
	if bpm <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute) / (bpm * TicksPerBeat))
}

// TicksToDuration converts a tick span to time at the tempo
func TicksToDuration(ticks int64, bpm float64) time.Duration {
	if bpm <= 0 {
		return 0
	}
	return time.Duration(float64(ticks) * float64(time.Minute) / (bpm * TicksPerBeat))
}

// Advance moves clock time forward by d and fires every callback whose tick
// is crossed, in tick order. Musical time only moves while running.
func (c *Clock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	base := c.now
	c.now += d
	if !c.running {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	occ := c.collect(base, d)
	c.mu.Unlock()

	for _, o := range occ {
		if !c.live(o.e, gen) {
			continue
		}
		o.e.fn(Event{At: o.at, Tick: o.tick})
	}
}

// live reports whether an occurrence may still fire and consumes one-shot entries
func (c *Clock) live(e *entry, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.gen != gen {
		return false
	}
	if _, ok := c.entries[e.id]; !ok {
		return false
	}
	if e.kind == kindOnce {
		delete(c.entries, e.id)
	}
	return true
}

// collect walks the tick span covered by d, wrapping at the loop end, and
// returns the occurrences sorted by time. Must hold c.mu.
func (c *Clock) collect(base, d time.Duration) []occurrence {
	rate := c.bpm * TicksPerBeat / 60 // ticks per second
	remaining := d.Seconds() * rate
	from := c.ticks
	if c.loop && from >= float64(c.loopEnd) {
		// a window set behind the position takes effect at once
		from = float64(c.loopStart)
	}
	walked := 0.0

	var occ []occurrence
	seq := 0
	seenOnce := make(map[Handle]bool)
	emit := func(e *entry, t int64, segFrom float64) {
		dist := walked + float64(t) - segFrom
		at := base + time.Duration(dist/rate*float64(time.Second))
		occ = append(occ, occurrence{e: e, tick: t, at: at, seq: seq})
		seq++
	}

	for remaining > 0 {
		to := from + remaining
		wrap := false
		if c.loop && from < float64(c.loopEnd) && to >= float64(c.loopEnd) {
			to = float64(c.loopEnd)
			wrap = true
		}
		for _, e := range c.entries {
			switch e.kind {
			case kindPosition, kindOnce:
				if e.kind == kindOnce && seenOnce[e.id] {
					continue
				}
				if float64(e.tick) >= from && float64(e.tick) < to {
					emit(e, e.tick, from)
					if e.kind == kindOnce {
						seenOnce[e.id] = true
					}
				}
			case kindRepeat:
				first := e.tick
				if float64(first) < from {
					k := int64(math.Ceil((from - float64(e.tick)) / float64(e.interval)))
					first = e.tick + k*e.interval
				}
				for t := first; float64(t) < to; t += e.interval {
					emit(e, t, from)
				}
			}
		}
		walked += to - from
		remaining -= to - from
		from = to
		if wrap {
			from = float64(c.loopStart)
		}
	}
	c.ticks = from

	sort.SliceStable(occ, func(i, j int) bool {
		if occ[i].at != occ[j].at {
			return occ[i].at < occ[j].at
		}
		if occ[i].tick != occ[j].tick {
			return occ[i].tick < occ[j].tick
		}
		return occ[i].e.id < occ[j].e.id
	})
	return occ
}

// Run advances the clock from the wall clock until ctx is done
func (c *Clock) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			c.Advance(now.Sub(last))
			last = now
		}
	}
}
