// Package main is the entry point for the gangsa CLI
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/james-see/gangsa/pkg/api"
	"github.com/james-see/gangsa/pkg/audio"
	"github.com/james-see/gangsa/pkg/config"
	"github.com/james-see/gangsa/pkg/logging"
	"github.com/james-see/gangsa/pkg/midifile"
	"github.com/james-see/gangsa/pkg/sequencer"
	"github.com/james-see/gangsa/pkg/timeline"
	"github.com/james-see/gangsa/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	tempo      int
	loop       bool
	output     string
	voice      string
	midiPort   string
	inputFile  string
	outputFile string
	serverPort int
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gangsa",
	Short: "Step sequencer for the Balinese gangsa",
	Long: `gangsa sequences patterns for the ten-key Balinese gangsa metallophone.

Timelines of notes and rests play in sync, one sixteenth note per step,
through a built-in detuned synth or a MIDI output port.

Examples:
  gangsa tui
  gangsa play selisir --loop --tempo 96
  gangsa play --file pattern.mid --output midi --port "IAC Driver Bus 1"
  gangsa export gilak-pembuka gilak-penutup -o gilak.mid
  gangsa serve --port 8080`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

var playCmd = &cobra.Command{
	Use:   "play [preset...]",
	Short: "Play presets or a file until the end, or forever with --loop",
	RunE:  runPlay,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive sequencer",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

var exportCmd = &cobra.Command{
	Use:   "export <preset...>",
	Short: "Write presets as timelines to a .mid or .json file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Show the timelines read from a .mid or .json file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List built-in presets",
	RunE:  runPresets,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports",
	RunE:  runPorts,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().IntVarP(&tempo, "tempo", "t", sequencer.DefaultTempo, "Tempo in BPM (40-240)")
	rootCmd.PersistentFlags().BoolVarP(&loop, "loop", "l", false, "Loop playback")
	rootCmd.PersistentFlags().StringVar(&output, "output", string(config.OutputSynth), "Audio output (synth, midi)")
	rootCmd.PersistentFlags().StringVar(&voice, "voice", string(audio.Dual), "Synth voice mode (dual, single)")
	rootCmd.PersistentFlags().StringVar(&midiPort, "port", "", "MIDI output port name")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level")

	// play command
	playCmd.Flags().StringVarP(&inputFile, "file", "f", "", "Play a .mid or .json file")

	// export command
	exportCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output file path (required)")
	_ = exportCmd.MarkFlagRequired("out")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "server-port", "p", 8080, "Server port")

	// Add commands
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(portsCmd)
}

// loadConfig reads the saved config and overlays flags the user set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("tempo") {
		cfg.Tempo = sequencer.ClampTempo(tempo)
	}
	if flags.Changed("loop") {
		cfg.Loop = loop
	}
	if flags.Changed("output") {
		cfg.Output = config.Output(output)
	}
	if flags.Changed("voice") {
		cfg.Voice = voice
	}
	if flags.Changed("port") {
		cfg.MIDIPort = midiPort
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("server-port") {
		cfg.ServerPort = serverPort
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is a backend, its timelines and the transport playing them
type session struct {
	cfg       *config.Config
	logger    *zap.Logger
	timelines *timeline.Collection
	transport *sequencer.Transport
	autosave  *config.Autosaver
	close     func() error
}

func newSession(cfg *config.Config, logger *zap.Logger) (*session, error) {
	backend, closeBackend, err := openBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	tl := timeline.NewCollection()
	tr := sequencer.NewTransport(backend, tl,
		sequencer.WithLogger(logger),
		sequencer.WithTempo(cfg.Tempo),
		sequencer.WithLoop(cfg.Loop),
		sequencer.WithCellWidth(cfg.CellWidth),
	)
	return &session{
		cfg:       cfg,
		logger:    logger,
		timelines: tl,
		transport: tr,
		autosave:  config.NewAutosaver(cfg, 500*time.Millisecond, logger),
		close:     closeBackend,
	}, nil
}

func (s *session) Close() {
	s.transport.Stop()
	s.autosave.Flush()
	if err := s.close(); err != nil {
		s.logger.Warn("closing backend", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// loadPresets builds one timeline per preset name
func loadPresets(tl *timeline.Collection, names []string) error {
	id := tl.Active()
	for i, name := range names {
		if i > 0 {
			id = tl.AddTimeline().ID
		}
		if err := tl.LoadPreset(id, name); err != nil {
			return err
		}
	}
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSession(cfg, logging.Must(cfg.LogLevel, ""))
	if err != nil {
		return err
	}
	defer s.Close()

	switch {
	case inputFile != "":
		timelines, bpm, err := midifile.NewCodec().ReadFile(inputFile)
		if err != nil {
			return err
		}
		s.timelines.Replace(timelines)
		if !cmd.Flags().Changed("tempo") && bpm > 0 {
			s.transport.SetTempo(bpm)
		}
	case len(args) > 0:
		if err := loadPresets(s.timelines, args); err != nil {
			return err
		}
	default:
		if err := loadPresets(s.timelines, []string{"selisir"}); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := s.transport.Play(ctx); err != nil {
		return err
	}
	fmt.Printf("Playing %d timeline(s) at %d BPM (loop %v), ctrl-c to stop\n",
		len(s.timelines.Snapshot()), s.transport.Tempo(), s.transport.Loop())

	updates, cancel := s.transport.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-s.transport.Done():
			fmt.Println("\nDone")
			return nil
		case pos := <-updates:
			if pos.Playing() {
				fmt.Printf("\rstep %2d/%d", pos.Step+1, pos.Length)
			}
		}
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logPath, err := config.LogPath()
	if err != nil {
		return err
	}
	s, err := newSession(cfg, logging.Must(cfg.LogLevel, logPath))
	if err != nil {
		return err
	}
	defer s.Close()

	return tui.Run(s.timelines, s.transport,
		tui.WithLogger(s.logger),
		tui.WithAutosaver(s.autosave),
	)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSession(cfg, logging.Must(cfg.LogLevel, ""))
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Starting API server on port %d...\n", cfg.ServerPort)
	srv := api.NewServer(s.timelines, s.transport,
		api.WithLogger(s.logger),
		api.WithAutosaver(s.autosave),
	)
	return srv.Run(ctx, cfg.ServerPort)
}

func runExport(cmd *cobra.Command, args []string) error {
	tl := timeline.NewCollection()
	if err := loadPresets(tl, args); err != nil {
		return err
	}
	bpm := sequencer.ClampTempo(tempo)
	if err := midifile.NewCodec().WriteFile(outputFile, tl.Snapshot(), bpm); err != nil {
		return err
	}
	fmt.Printf("Exported %s -> %s\n", strings.Join(args, ", "), outputFile)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	timelines, bpm, err := midifile.NewCodec().ReadFile(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d timeline(s) at %d BPM\n", args[0], len(timelines), bpm)
	for _, t := range timelines {
		fmt.Printf("  %s  %s\n", t.ID, describe(t))
	}
	return nil
}

// describe renders a timeline in preset pattern notation
func describe(t timeline.Timeline) string {
	tokens := make([]string, 0, t.Len())
	for _, it := range t.Items {
		if n, ok := it.(timeline.Note); ok {
			tokens = append(tokens, n.Pitch)
			continue
		}
		tokens = append(tokens, "-")
	}
	return strings.Join(tokens, " ")
}

func runPresets(cmd *cobra.Command, args []string) error {
	for _, p := range timeline.Presets() {
		fmt.Printf("%-14s %s\n", p.Name, p.Description)
		fmt.Printf("%-14s %s\n", "", p.Pattern)
	}
	return nil
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports := audio.ListMIDIPorts()
	if len(ports) == 0 {
		fmt.Println("No MIDI output ports found")
		return nil
	}
	for i, name := range ports {
		fmt.Printf("%d: %s\n", i, name)
	}
	return nil
}
