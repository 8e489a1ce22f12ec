package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/james-see/gangsa/pkg/clock"
	"github.com/james-see/gangsa/pkg/sequencer"
	"github.com/james-see/gangsa/pkg/timeline"
)

// VoiceMode selects how many instruments sound each note
type VoiceMode string

const (
	// Dual plays a pengumbang and pengisep pair tuned apart by the ombak
	Dual VoiceMode = "dual"
	// Single plays one instrument
	Single VoiceMode = "single"
)

// ParseVoiceMode validates a voice mode name
func ParseVoiceMode(s string) (VoiceMode, error) {
	switch VoiceMode(s) {
	case Dual, Single:
		return VoiceMode(s), nil
	}
	return "", fmt.Errorf("unknown voice mode %q (want dual or single)", s)
}

const (
	DefaultSampleRate = 48000
	DefaultOmbak      = 6.0 // beat frequency between the paired instruments, Hz
	maxVoices         = 48
	releaseTail       = 80 * time.Millisecond
)

// ErrClosed is returned when activating a closed synth
var ErrClosed = errors.New("synth closed")

// metallophone partials: frequency ratio, amplitude, decay per second
var partials = [...]struct {
	ratio, amp, decay float64
}{
	{1.0, 1.0, 3.0},
	{2.76, 0.45, 6.0},
	{5.40, 0.22, 11.0},
	{8.93, 0.10, 18.0},
}

type voice struct {
	freq   float64
	gainL  float64
	gainR  float64
	delay  int // frames before onset
	age    int // frames since onset
	length int // frames until release
	phase  [len(partials)]float64
}

func (v *voice) finished(sampleRate int) bool {
	return v.age > v.length+int(releaseTail.Seconds()*float64(sampleRate))
}

// next returns the mono sample at the voice's current age and advances it
func (v *voice) next(sampleRate int) float64 {
	sr := float64(sampleRate)
	t := float64(v.age) / sr
	var s float64
	for i, p := range partials {
		s += p.amp * math.Exp(-p.decay*t) * math.Sin(v.phase[i])
		v.phase[i] += 2 * math.Pi * v.freq * p.ratio / sr
		if v.phase[i] > 2*math.Pi {
			v.phase[i] -= 2 * math.Pi
		}
	}
	// 2ms attack
	if a := t / 0.002; a < 1 {
		s *= a
	}
	if v.age > v.length {
		s *= math.Exp(-float64(v.age-v.length) / sr * 60)
	}
	v.age++
	return s
}

// SynthOption configures a Synth
type SynthOption func(*Synth)

func WithVoiceMode(m VoiceMode) SynthOption {
	return func(s *Synth) { s.mode = m }
}

func WithSampleRate(sr int) SynthOption {
	return func(s *Synth) {
		if sr > 0 {
			s.sampleRate = sr
		}
	}
}

func WithOmbak(hz float64) SynthOption {
	return func(s *Synth) { s.ombak = hz }
}

func WithSynthLogger(l *zap.Logger) SynthOption {
	return func(s *Synth) { s.logger = l }
}

// Synth is a sequencer backend that renders gangsa tones. Its render loop
// advances the clock, so note onsets are sample accurate.
type Synth struct {
	mu         sync.Mutex
	clk        *clock.Clock
	mode       VoiceMode
	sampleRate int
	ombak      float64
	gain       float64
	voices     []*voice
	bufStart   time.Duration
	rendering  bool
	ready      bool
	closed     bool
	player     *Player
	logger     *zap.Logger
}

var (
	_ sequencer.Backend    = (*Synth)(nil)
	_ sequencer.Activator  = (*Synth)(nil)
	_ sequencer.Auditioner = (*Synth)(nil)
	_ SampleSource         = (*Synth)(nil)
)

// NewSynth creates a synth bound to clk. It is not ready until Activate.
func NewSynth(clk *clock.Clock, opts ...SynthOption) *Synth {
	s := &Synth{
		clk:        clk,
		mode:       Dual,
		sampleRate: DefaultSampleRate,
		ombak:      DefaultOmbak,
		gain:       0.25,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Activate opens the audio device and starts the render loop
func (s *Synth) Activate(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.ready {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	player, err := NewPlayer(s.sampleRate, s)
	if err != nil {
		return fmt.Errorf("open audio output: %w", err)
	}
	if err := player.WaitReady(ctx); err != nil {
		player.Stop()
		return err
	}
	player.Play()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		// lost a race with another Activate
		player.Stop()
		return nil
	}
	s.player = player
	s.ready = true
	s.logger.Info("audio output ready",
		zap.Int("sample_rate", s.sampleRate),
		zap.String("voice", string(s.mode)),
	)
	return nil
}

// Ready reports whether the audio device is running
func (s *Synth) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Clock returns the clock the render loop advances
func (s *Synth) Clock() *clock.Clock {
	return s.clk
}

// TriggerNote starts a note. at is clock time; when it falls inside the
// buffer being rendered the onset is offset to the exact frame.
func (s *Synth) TriggerNote(pitch string, duration, at time.Duration) {
	freq, err := timeline.Frequency(pitch)
	if err != nil {
		s.logger.Warn("cannot sound pitch", zap.String("pitch", pitch), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delay := 0
	if s.rendering && at > s.bufStart {
		delay = s.frames(at - s.bufStart)
	}
	length := max(s.frames(duration), 1)

	switch s.mode {
	case Single:
		s.addVoice(freq, 0, delay, length)
	default:
		s.addVoice(freq-s.ombak/2, -0.6, delay, length)
		s.addVoice(freq+s.ombak/2, 0.6, delay, length)
	}
}

// Audition previews a pitch for a half note at the clock's tempo
func (s *Synth) Audition(pitch string) {
	s.TriggerNote(pitch, sequencer.AuditionLength(int(s.clk.BPM())), s.clk.Now())
}

func (s *Synth) frames(d time.Duration) int {
	return int(d.Seconds() * float64(s.sampleRate))
}

// addVoice pans with constant power; pan is in [-1, 1]. Must hold s.mu.
func (s *Synth) addVoice(freq, pan float64, delay, length int) {
	angle := (pan + 1) * math.Pi / 4
	v := &voice{
		freq:   freq,
		gainL:  math.Cos(angle),
		gainR:  math.Sin(angle),
		delay:  delay,
		length: length,
	}
	if len(s.voices) >= maxVoices {
		s.voices = s.voices[1:]
	}
	s.voices = append(s.voices, v)
}

// Voices returns the number of sounding voices
func (s *Synth) Voices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

// Process advances the clock by the buffer's duration, firing every event
// that falls inside it, then renders the voices into dst.
func (s *Synth) Process(dst []float32) {
	frames := len(dst) / 2
	if frames == 0 {
		return
	}
	d := time.Duration(float64(frames) / float64(s.sampleRate) * float64(time.Second))

	s.mu.Lock()
	s.bufStart = s.clk.Now()
	s.rendering = true
	s.mu.Unlock()

	s.clk.Advance(d)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendering = false
	live := s.voices[:0]
	for _, v := range s.voices {
		for i := 0; i < frames; i++ {
			if v.delay > 0 {
				v.delay--
				continue
			}
			x := v.next(s.sampleRate) * s.gain
			dst[2*i] += float32(x * v.gainL)
			dst[2*i+1] += float32(x * v.gainR)
		}
		if !v.finished(s.sampleRate) {
			live = append(live, v)
		}
	}
	clear(s.voices[len(live):])
	s.voices = live
	for i := range dst {
		dst[i] = float32(math.Max(-1, math.Min(1, float64(dst[i]))))
	}
}

// Close stops the audio output
func (s *Synth) Close() error {
	s.mu.Lock()
	s.closed = true
	s.ready = false
	s.voices = nil
	player := s.player
	s.player = nil
	s.mu.Unlock()

	// the device may be inside Process; stop it without holding s.mu
	if player == nil {
		return nil
	}
	return player.Stop()
}
