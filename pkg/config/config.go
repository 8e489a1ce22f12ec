// Package config loads and saves user settings under ~/.config/gangsa
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"
)

// Output selects the sound backend
type Output string

const (
	OutputSynth Output = "synth"
	OutputMIDI  Output = "midi"
)

// Config is the main configuration structure
type Config struct {
	Tempo      int     `json:"tempo"`
	Loop       bool    `json:"loop"`
	Output     Output  `json:"output"`
	Voice      string  `json:"voice"`
	MIDIPort   string  `json:"midiPort,omitempty"`
	SampleRate int     `json:"sampleRate"`
	ServerPort int     `json:"serverPort"`
	LogLevel   string  `json:"logLevel"`
	CellWidth  float64 `json:"cellWidth"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Tempo:      120,
		Output:     OutputSynth,
		Voice:      "dual",
		SampleRate: 48000,
		ServerPort: 8080,
		LogLevel:   "info",
		CellWidth:  48,
	}
}

// Validate checks every field
func (c *Config) Validate() error {
	var errs []error
	if c.Tempo < 40 || c.Tempo > 240 {
		errs = append(errs, fmt.Errorf("tempo %d outside 40..240", c.Tempo))
	}
	switch c.Output {
	case OutputSynth, OutputMIDI:
	default:
		errs = append(errs, fmt.Errorf("unknown output %q", c.Output))
	}
	if c.Voice != "dual" && c.Voice != "single" {
		errs = append(errs, fmt.Errorf("unknown voice %q", c.Voice))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("invalid sample rate %d", c.SampleRate))
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.ServerPort))
	}
	if c.CellWidth <= 0 {
		errs = append(errs, fmt.Errorf("invalid cell width %v", c.CellWidth))
	}
	return errors.Join(errs...)
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "gangsa"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LogPath returns the path of the debug log file
func LogPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "debug.log"), nil
}

// Load reads the config from disk, or returns defaults if not found.
// Fields missing from the file keep their defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Autosaver coalesces bursts of setting changes into one save
type Autosaver struct {
	mu       sync.Mutex
	cfg      *Config
	debounce func(func())
	logger   *zap.Logger
	saved    chan struct{}
	dirty    bool
}

// NewAutosaver saves cfg once after changes have been quiet for delay
func NewAutosaver(cfg *Config, delay time.Duration, logger *zap.Logger) *Autosaver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autosaver{
		cfg:      cfg,
		debounce: debounce.New(delay),
		logger:   logger,
		saved:    make(chan struct{}, 1),
	}
}

// Update applies fn to the config and schedules a save
func (a *Autosaver) Update(fn func(c *Config)) {
	a.mu.Lock()
	fn(a.cfg)
	a.dirty = true
	a.mu.Unlock()
	a.debounce(a.save)
}

// Flush saves pending changes now, for use on shutdown
func (a *Autosaver) Flush() {
	a.save()
}

// Config returns a copy of the current settings
func (a *Autosaver) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.cfg
}

// Saved is signalled after each completed save
func (a *Autosaver) Saved() <-chan struct{} {
	return a.saved
}

func (a *Autosaver) save() {
	a.mu.Lock()
	if !a.dirty {
		a.mu.Unlock()
		return
	}
	a.dirty = false
	cfg := *a.cfg
	a.mu.Unlock()
	if err := cfg.Save(); err != nil {
		a.logger.Error("failed to save config", zap.Error(err))
		return
	}
	a.logger.Debug("config saved", zap.Int("tempo", cfg.Tempo), zap.Bool("loop", cfg.Loop))
	select {
	case a.saved <- struct{}{}:
	default:
	}
}
