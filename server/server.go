// Package server exposes the detector over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RyanBlaney/sonido-voz/config"
	"github.com/RyanBlaney/sonido-voz/detection"
	"github.com/RyanBlaney/sonido-voz/logging"
)

const (
	detectPath = "/v1/detect-voice"
	healthPath = "/health"

	// multipartOverhead is allowed on top of the upload limit for form framing
	multipartOverhead = 1 << 20
)

// Server serves the detection API
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	detector   *detection.Detector
	config     config.ServerConfig
	maxUpload  int64
	maxBody    int64
}

// New creates a server with routes and middleware applied. maxUpload is the
// largest accepted audio payload in bytes.
func New(cfg config.ServerConfig, detector *detection.Detector, maxUpload int64) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	engine := gin.New()
	s := &Server{
		engine:    engine,
		detector:  detector,
		config:    cfg,
		maxUpload: maxUpload,
		maxBody:   maxUpload + multipartOverhead,
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}

	engine.Use(Recovery())
	engine.Use(RequestID())
	engine.Use(CORS(cfg.CORSOrigins))
	engine.Use(RequestLogger())
	engine.Use(APIKey(cfg.APIKey, healthPath))

	engine.GET(healthPath, s.health)
	engine.POST(detectPath, s.detectVoice)

	return s
}

// Handler returns the root http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	logger := logging.WithFields(logging.Fields{"component": "server"})

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	logger.Info("HTTP server started", logging.Fields{
		"addr":          listener.Addr().String(),
		"model_version": s.detector.ModelVersion(),
	})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	logger.Info("HTTP server shut down successfully")
	return nil
}
