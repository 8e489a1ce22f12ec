package main

import (
	"context"
	"fmt"
	"time"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver
	"go.uber.org/zap"

	"github.com/james-see/gangsa/pkg/audio"
	"github.com/james-see/gangsa/pkg/clock"
	"github.com/james-see/gangsa/pkg/config"
	"github.com/james-see/gangsa/pkg/sequencer"
)

// midiClockInterval is how often the wall clock drives a MIDI backend
const midiClockInterval = 2 * time.Millisecond

// openBackend builds the sound backend cfg selects, plus a func releasing it
func openBackend(cfg *config.Config, logger *zap.Logger) (sequencer.Backend, func() error, error) {
	clk := clock.New(float64(cfg.Tempo))

	switch cfg.Output {
	case config.OutputSynth:
		mode, err := audio.ParseVoiceMode(cfg.Voice)
		if err != nil {
			return nil, nil, err
		}
		synth := audio.NewSynth(clk,
			audio.WithVoiceMode(mode),
			audio.WithSampleRate(cfg.SampleRate),
			audio.WithSynthLogger(logger),
		)
		return synth, synth.Close, nil

	case config.OutputMIDI:
		out, err := audio.OpenMIDIOut(cfg.MIDIPort, clk, audio.WithMIDILogger(logger))
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			_ = clk.Run(ctx, midiClockInterval)
		}()
		logger.Info("midi output open", zap.String("port", cfg.MIDIPort))
		return out, func() error {
			cancel()
			return out.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown output %q", cfg.Output)
}
