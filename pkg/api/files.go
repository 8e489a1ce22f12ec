package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/james-see/gangsa/pkg/midifile"
)

// maxUploadBytes limits the size of an imported file
const maxUploadBytes = 1 << 20

// exportFile godoc
// @Summary Download the timelines
// @Description Unmuted timelines as a Standard MIDI File, or every timeline as JSON
// @Tags files
// @Produce application/octet-stream
// @Param format query string false "midi (default) or json"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Router /api/v1/export [get]
func (s *Server) exportFile(c *gin.Context) {
	snap := s.timelines.Snapshot()
	bpm := s.transport.Tempo()

	switch midifile.Format(c.DefaultQuery("format", string(midifile.FormatMIDI))) {
	case midifile.FormatMIDI:
		data, err := s.codec.Export(snap, bpm)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", "attachment; filename=gangsa.mid")
		c.Data(http.StatusOK, "audio/midi", data)
	case midifile.FormatJSON:
		c.Header("Content-Disposition", "attachment; filename=gangsa.json")
		c.JSON(http.StatusOK, midifile.Document{Tempo: bpm, Timelines: snap})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported format"})
	}
}

// importFile godoc
// @Summary Replace the timelines from a file
// @Description Upload a MIDI or JSON file; its tempo becomes the transport tempo
// @Tags files
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI or JSON file"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/import [post]
func (s *Server) importFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	format := midifile.DetectFormat(header.Filename)
	if format == midifile.FormatUnknown {
		format = midifile.DetectFormatFromContent(data)
	}

	var doc midifile.Document
	doc.Timelines, doc.Tempo, err = s.codec.Decode(data, format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.transport.Stop()
	s.timelines.Replace(doc.Timelines)
	if doc.Tempo > 0 {
		s.transport.SetTempo(doc.Tempo)
	}
	s.logger.Info("imported timelines",
		zap.String("file", header.Filename),
		zap.Int("timelines", len(doc.Timelines)),
	)
	s.timelinesResponse(c, http.StatusOK)
}
