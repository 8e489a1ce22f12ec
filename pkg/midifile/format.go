package midifile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/james-see/gangsa/pkg/timeline"
)

// Format represents a file format
type Format string

const (
	FormatMIDI    Format = "midi"
	FormatJSON    Format = "json"
	FormatUnknown Format = "unknown"
)

// Document is the JSON form of a timeline set
type Document struct {
	Tempo     int                 `json:"tempo"`
	Timelines []timeline.Timeline `json:"timelines"`
}

// DetectFormat detects the format of a file based on extension
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mid", ".midi":
		return FormatMIDI
	case ".json":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent detects format from file content
func DetectFormatFromContent(data []byte) Format {
	if len(data) >= 4 && string(data[:4]) == "MThd" {
		return FormatMIDI
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatUnknown
}

// ReadFile loads timelines and tempo from a MIDI or JSON file
func (c *Codec) ReadFile(path string) ([]timeline.Timeline, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read input file: %w", err)
	}
	format := DetectFormat(path)
	if format == FormatUnknown {
		format = DetectFormatFromContent(data)
	}

	if format == FormatUnknown {
		return nil, 0, fmt.Errorf("cannot determine format of %s", path)
	}
	return c.Decode(data, format)
}

// Decode reads timelines and tempo from MIDI or JSON data. Timelines longer
// than MaxSteps are rejected with ErrTooLong.
func (c *Codec) Decode(data []byte, format Format) ([]timeline.Timeline, int, error) {
	switch format {
	case FormatMIDI:
		return c.Import(data)
	case FormatJSON:
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, 0, fmt.Errorf("failed to parse JSON: %w", err)
		}
		for _, t := range doc.Timelines {
			if t.Len() > MaxSteps {
				return nil, 0, fmt.Errorf("%w: timeline %s has %d steps", ErrTooLong, t.ID, t.Len())
			}
		}
		return doc.Timelines, doc.Tempo, nil
	default:
		return nil, 0, fmt.Errorf("unsupported format %q", format)
	}
}

// WriteFile saves timelines in the format named by the file extension
func (c *Codec) WriteFile(path string, timelines []timeline.Timeline, bpm int) error {
	var (
		data []byte
		err  error
	)
	switch DetectFormat(path) {
	case FormatMIDI:
		data, err = c.Export(timelines, bpm)
	case FormatJSON:
		data, err = json.MarshalIndent(Document{Tempo: bpm, Timelines: timelines}, "", "  ")
	default:
		return errors.New("cannot determine output format from filename")
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
