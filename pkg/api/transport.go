package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/james-see/gangsa/pkg/config"
)

type tempoRequest struct {
	BPM int `json:"bpm" binding:"required"`
}

type loopRequest struct {
	Loop *bool `json:"loop" binding:"required"`
}

// transportState godoc
// @Summary Current playback state
// @Tags transport
// @Produce json
// @Success 200 {object} sequencer.PlaybackState
// @Router /api/v1/transport [get]
func (s *Server) transportState(c *gin.Context) {
	c.JSON(http.StatusOK, s.transport.PlaybackState())
}

// play godoc
// @Summary Start playback from the top
// @Description Plays the timelines as they are now; later edits apply on the next play
// @Tags transport
// @Produce json
// @Success 200 {object} sequencer.PlaybackState
// @Failure 409 {object} map[string]string
// @Router /api/v1/transport/play [post]
func (s *Server) play(c *gin.Context) {
	if err := s.transport.Play(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.transport.PlaybackState())
}

// stop godoc
// @Summary Stop playback
// @Tags transport
// @Produce json
// @Success 200 {object} sequencer.PlaybackState
// @Router /api/v1/transport/stop [post]
func (s *Server) stop(c *gin.Context) {
	s.transport.Stop()
	c.JSON(http.StatusOK, s.transport.PlaybackState())
}

// setTempo godoc
// @Summary Set the tempo
// @Description Values are clamped to 40..240 BPM and apply immediately
// @Tags transport
// @Accept json
// @Produce json
// @Param tempo body tempoRequest true "Tempo in BPM"
// @Success 200 {object} sequencer.PlaybackState
// @Failure 400 {object} map[string]string
// @Router /api/v1/transport/tempo [put]
func (s *Server) setTempo(c *gin.Context) {
	var req tempoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	bpm := s.transport.SetTempo(req.BPM)
	if s.autosave != nil {
		s.autosave.Update(func(cfg *config.Config) { cfg.Tempo = bpm })
	}
	c.JSON(http.StatusOK, s.transport.PlaybackState())
}

// setLoop godoc
// @Summary Turn loop mode on or off
// @Tags transport
// @Accept json
// @Produce json
// @Param loop body loopRequest true "Loop mode"
// @Success 200 {object} sequencer.PlaybackState
// @Failure 400 {object} map[string]string
// @Router /api/v1/transport/loop [put]
func (s *Server) setLoop(c *gin.Context) {
	var req loopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	loop := *req.Loop
	s.transport.SetLoop(loop)
	if s.autosave != nil {
		s.autosave.Update(func(cfg *config.Config) { cfg.Loop = loop })
	}
	c.JSON(http.StatusOK, s.transport.PlaybackState())
}

// transportEvents godoc
// @Summary Stream playback position
// @Description Server-sent events named "position", one per published step
// @Tags transport
// @Produce text/event-stream
// @Success 200 {object} sequencer.PlaybackState
// @Router /api/v1/transport/events [get]
func (s *Server) transportEvents(c *gin.Context) {
	updates, cancel := s.transport.Subscribe()
	defer cancel()
	ctx := c.Request.Context()

	s.logger.Debug("position stream opened", zap.String("remote", c.ClientIP()))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case _, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("position", s.transport.PlaybackState())
			return true
		}
	})
}
