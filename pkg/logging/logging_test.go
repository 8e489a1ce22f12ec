package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.log")
	logger, err := New("debug", path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Debug("hello from the test")
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "hello from the test") {
		t.Errorf("log file = %q", data)
	}
}

func TestNewLevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warn.log")
	logger, err := New("warn", path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Info("quiet")
	logger.Warn("loud")
	logger.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "quiet") || !strings.Contains(string(data), "loud") {
		t.Errorf("log file = %q", data)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New("shouty", ""); err == nil {
		t.Error("New(shouty) returned no error")
	}
	if Must("shouty", "") == nil {
		t.Error("Must() returned nil logger")
	}
}
