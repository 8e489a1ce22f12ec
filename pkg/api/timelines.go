package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/james-see/gangsa/pkg/sequencer"
)

type appendRequest struct {
	Pitch string `json:"pitch"`
	Rest  bool   `json:"rest"`
}

type moveRequest struct {
	Before string `json:"before"` // empty moves to the end
}

func (s *Server) timelinesResponse(c *gin.Context, status int) {
	c.JSON(status, gin.H{
		"timelines": s.timelines.Snapshot(),
		"active":    s.timelines.Active(),
		"maxSteps":  s.timelines.MaxSteps(),
	})
}

func (s *Server) timelineResponse(c *gin.Context, status int, id string) {
	t, err := s.timelines.Get(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(status, t)
}

// listTimelines godoc
// @Summary List timelines
// @Tags timelines
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/timelines [get]
func (s *Server) listTimelines(c *gin.Context) {
	s.timelinesResponse(c, http.StatusOK)
}

// addTimeline godoc
// @Summary Add an empty timeline
// @Description The new timeline becomes active
// @Tags timelines
// @Produce json
// @Success 201 {object} timeline.Timeline
// @Router /api/v1/timelines [post]
func (s *Server) addTimeline(c *gin.Context) {
	t := s.timelines.AddTimeline()
	c.JSON(http.StatusCreated, t)
}

// getTimeline godoc
// @Summary Get one timeline
// @Tags timelines
// @Produce json
// @Param id path string true "Timeline id"
// @Success 200 {object} timeline.Timeline
// @Failure 404 {object} map[string]string
// @Router /api/v1/timelines/{id} [get]
func (s *Server) getTimeline(c *gin.Context) {
	s.timelineResponse(c, http.StatusOK, c.Param("id"))
}

// removeTimeline godoc
// @Summary Remove a timeline
// @Tags timelines
// @Param id path string true "Timeline id"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/timelines/{id} [delete]
func (s *Server) removeTimeline(c *gin.Context) {
	if err := s.timelines.RemoveTimeline(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// clearTimeline godoc
// @Summary Remove every item of a timeline
// @Tags timelines
// @Produce json
// @Param id path string true "Timeline id"
// @Success 200 {object} timeline.Timeline
// @Router /api/v1/timelines/{id}/clear [post]
func (s *Server) clearTimeline(c *gin.Context) {
	id := c.Param("id")
	if err := s.timelines.ClearTimeline(id); err != nil {
		s.fail(c, err)
		return
	}
	s.timelineResponse(c, http.StatusOK, id)
}

// toggleMute godoc
// @Summary Toggle the mute flag of a timeline
// @Tags timelines
// @Produce json
// @Param id path string true "Timeline id"
// @Success 200 {object} map[string]bool
// @Router /api/v1/timelines/{id}/mute [post]
func (s *Server) toggleMute(c *gin.Context) {
	muted, err := s.timelines.ToggleMute(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isMuted": muted})
}

// setActive godoc
// @Summary Select the timeline palette notes go to
// @Tags timelines
// @Param id path string true "Timeline id"
// @Success 204
// @Router /api/v1/timelines/{id}/active [put]
func (s *Server) setActive(c *gin.Context) {
	if err := s.timelines.SetActive(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// loadPreset godoc
// @Summary Replace a timeline with a built-in preset
// @Tags timelines
// @Produce json
// @Param id path string true "Timeline id"
// @Param name path string true "Preset name"
// @Success 200 {object} timeline.Timeline
// @Failure 400 {object} map[string]string
// @Router /api/v1/timelines/{id}/preset/{name} [post]
func (s *Server) loadPreset(c *gin.Context) {
	id := c.Param("id")
	if err := s.timelines.LoadPreset(id, c.Param("name")); err != nil {
		s.fail(c, err)
		return
	}
	s.timelineResponse(c, http.StatusOK, id)
}

// appendItem godoc
// @Summary Append a note or rest
// @Tags timelines
// @Accept json
// @Produce json
// @Param id path string true "Timeline id"
// @Param item body appendRequest true "Pitch, or rest true"
// @Success 201 {object} timeline.Timeline
// @Failure 400 {object} map[string]string
// @Router /api/v1/timelines/{id}/items [post]
func (s *Server) appendItem(c *gin.Context) {
	var req appendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	id := c.Param("id")
	var err error
	switch {
	case req.Rest:
		_, err = s.timelines.AppendRest(id)
	case req.Pitch != "":
		_, err = s.timelines.AppendNote(id, req.Pitch)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "pitch or rest is required"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	s.timelineResponse(c, http.StatusCreated, id)
}

// removeLast godoc
// @Summary Remove the last item of a timeline
// @Tags timelines
// @Produce json
// @Param id path string true "Timeline id"
// @Success 200 {object} timeline.Timeline
// @Router /api/v1/timelines/{id}/last [delete]
func (s *Server) removeLast(c *gin.Context) {
	id := c.Param("id")
	if err := s.timelines.RemoveLast(id); err != nil {
		s.fail(c, err)
		return
	}
	s.timelineResponse(c, http.StatusOK, id)
}

// removeItem godoc
// @Summary Remove one item; later items move one step earlier
// @Tags timelines
// @Produce json
// @Param id path string true "Timeline id"
// @Param item path string true "Item id"
// @Success 200 {object} timeline.Timeline
// @Failure 404 {object} map[string]string
// @Router /api/v1/timelines/{id}/items/{item} [delete]
func (s *Server) removeItem(c *gin.Context) {
	id := c.Param("id")
	if err := s.timelines.RemoveItem(id, c.Param("item")); err != nil {
		s.fail(c, err)
		return
	}
	s.timelineResponse(c, http.StatusOK, id)
}

// moveItem godoc
// @Summary Move an item before another
// @Tags timelines
// @Accept json
// @Produce json
// @Param id path string true "Timeline id"
// @Param item path string true "Item id"
// @Param target body moveRequest true "Item to insert before"
// @Success 200 {object} timeline.Timeline
// @Failure 404 {object} map[string]string
// @Router /api/v1/timelines/{id}/items/{item}/move [post]
func (s *Server) moveItem(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	id := c.Param("id")
	if err := s.timelines.MoveItem(id, c.Param("item"), req.Before); err != nil {
		s.fail(c, err)
		return
	}
	s.timelineResponse(c, http.StatusOK, id)
}

// playPaletteNote godoc
// @Summary Append a palette note to the active timeline
// @Description Also previews the note for a half note when the audio backend is ready
// @Tags timelines
// @Produce json
// @Param pitch path string true "Pitch, e.g. D4"
// @Success 201 {object} timeline.Timeline
// @Failure 400 {object} map[string]string
// @Router /api/v1/palette/{pitch} [post]
func (s *Server) playPaletteNote(c *gin.Context) {
	pitch := c.Param("pitch")
	id := s.timelines.Active()
	if _, err := s.timelines.AppendNote(id, pitch); err != nil {
		s.fail(c, err)
		return
	}
	audition(s.transport.Backend(), pitch)
	s.timelineResponse(c, http.StatusCreated, id)
}

// audition previews pitch if the backend can and is ready
func audition(b sequencer.Backend, pitch string) {
	if a, ok := b.(sequencer.Auditioner); ok && b.Ready() {
		a.Audition(pitch)
	}
}
