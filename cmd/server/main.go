// Package main is the entry point for the gangsa API server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/james-see/gangsa/pkg/api"
	"github.com/james-see/gangsa/pkg/audio"
	"github.com/james-see/gangsa/pkg/clock"
	"github.com/james-see/gangsa/pkg/config"
	"github.com/james-see/gangsa/pkg/logging"
	"github.com/james-see/gangsa/pkg/sequencer"
	"github.com/james-see/gangsa/pkg/timeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	port := flag.Int("port", cfg.ServerPort, "Server port")
	voice := flag.String("voice", cfg.Voice, "Synth voice mode (dual, single)")
	level := flag.String("log-level", cfg.LogLevel, "Log level")
	flag.Parse()

	logger := logging.Must(*level, "")
	defer func() { _ = logger.Sync() }()

	mode, err := audio.ParseVoiceMode(*voice)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
	synth := audio.NewSynth(clock.New(float64(cfg.Tempo)),
		audio.WithVoiceMode(mode),
		audio.WithSampleRate(cfg.SampleRate),
		audio.WithSynthLogger(logger),
	)
	defer func() { _ = synth.Close() }()

	timelines := timeline.NewCollection()
	transport := sequencer.NewTransport(synth, timelines,
		sequencer.WithLogger(logger),
		sequencer.WithTempo(cfg.Tempo),
		sequencer.WithLoop(cfg.Loop),
		sequencer.WithCellWidth(cfg.CellWidth),
	)
	defer transport.Stop()

	autosave := config.NewAutosaver(cfg, 500*time.Millisecond, logger)
	defer autosave.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Starting gangsa API server on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	srv := api.NewServer(timelines, transport,
		api.WithLogger(logger),
		api.WithAutosaver(autosave),
	)
	if err := srv.Run(ctx, *port); err != nil {
		logger.Error("server stopped", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
