// Package api provides the REST API server for gangsa
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/james-see/gangsa/pkg/config"
	"github.com/james-see/gangsa/pkg/midifile"
	"github.com/james-see/gangsa/pkg/sequencer"
	"github.com/james-see/gangsa/pkg/timeline"
)

// @title Gangsa API
// @version 1.0
// @description API for editing gangsa timelines and controlling playback
// @host localhost:8080
// @BasePath /api/v1

// Server exposes a timeline collection and its transport over HTTP
type Server struct {
	timelines *timeline.Collection
	transport *sequencer.Transport
	codec     *midifile.Codec
	autosave  *config.Autosaver
	logger    *zap.Logger
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAutosaver persists tempo and loop changes
func WithAutosaver(a *config.Autosaver) Option {
	return func(s *Server) { s.autosave = a }
}

// NewServer creates a server for timelines played by transport
func NewServer(timelines *timeline.Collection, transport *sequencer.Transport, opts ...Option) *Server {
	s := &Server{
		timelines: timelines,
		transport: transport,
		codec:     midifile.NewCodec(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with every route
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/palette", listPalette)
		v1.POST("/palette/:pitch", s.playPaletteNote)
		v1.GET("/presets", listPresets)

		v1.GET("/timelines", s.listTimelines)
		v1.POST("/timelines", s.addTimeline)
		v1.GET("/timelines/:id", s.getTimeline)
		v1.DELETE("/timelines/:id", s.removeTimeline)
		v1.POST("/timelines/:id/clear", s.clearTimeline)
		v1.POST("/timelines/:id/mute", s.toggleMute)
		v1.PUT("/timelines/:id/active", s.setActive)
		v1.POST("/timelines/:id/preset/:name", s.loadPreset)
		v1.POST("/timelines/:id/items", s.appendItem)
		v1.DELETE("/timelines/:id/last", s.removeLast)
		v1.DELETE("/timelines/:id/items/:item", s.removeItem)
		v1.POST("/timelines/:id/items/:item/move", s.moveItem)

		v1.GET("/transport", s.transportState)
		v1.POST("/transport/play", s.play)
		v1.POST("/transport/stop", s.stop)
		v1.PUT("/transport/tempo", s.setTempo)
		v1.PUT("/transport/loop", s.setLoop)
		v1.GET("/transport/events", s.transportEvents)

		v1.GET("/export", s.exportFile)
		v1.POST("/import", s.importFile)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// Handler returns the router wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.Router())
}

// Run serves on port until ctx is cancelled
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.logger.Info("api listening", zap.Int("port", port))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, timeline.ErrTimelineNotFound), errors.Is(err, timeline.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, timeline.ErrUnknownPitch),
		errors.Is(err, timeline.ErrUnknownPreset),
		errors.Is(err, timeline.ErrInvalidMutation):
		return http.StatusBadRequest
	case errors.Is(err, sequencer.ErrBackendNotReady), errors.Is(err, sequencer.ErrEmptyProgram):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "gangsa",
	})
}

// listPalette godoc
// @Summary List the note palette
// @Description Returns the ten gangsa keys, low register first
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]timeline.NoteDefinition
// @Router /api/v1/palette [get]
func listPalette(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"palette": timeline.Palette})
}

// listPresets godoc
// @Summary List built-in presets
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]timeline.Preset
// @Router /api/v1/presets [get]
func listPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": timeline.Presets()})
}
