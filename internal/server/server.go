// Package server exposes the agent over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	agrisage "github.com/ZanzyTHEbar/agrisage-genkit"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/classifier"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

// Agent is the orchestrator surface the server needs.
type Agent interface {
	Handle(ctx context.Context, req agrisage.Request) (*agrisage.Response, error)
	Health(ctx context.Context) agrisage.HealthReport
}

// Options configures the HTTP surface.
type Options struct {
	UploadDir      string
	MaxUploadBytes int64
	// Metrics, when set, is served on GET /metrics.
	Metrics http.Handler
}

// Server wraps an echo instance bound to one Agent.
type Server struct {
	e       *echo.Echo
	agent   Agent
	options Options
}

// New builds the routes.
func New(agent Agent, opts Options) (*Server, error) {
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if err := os.MkdirAll(opts.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	s := &Server{e: echo.New(), agent: agent, options: opts}
	e := s.e
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil {
				evt = log.Warn().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.POST("/chat", s.chat)
	e.GET("/health", s.health)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}
	e.Static(strings.TrimSuffix(classifier.UploadsRoute, "/"), opts.UploadDir)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	log.Info().Str("addr", addr).Msg("http server listening")
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

func (s *Server) chat(c echo.Context) error {
	req := agrisage.Request{
		SessionID: strings.TrimSpace(c.FormValue("session_id")),
		Text:      c.FormValue("text"),
		Location:  strings.TrimSpace(c.FormValue("location")),
	}
	if req.SessionID == "" {
		return agrisage.NewInvalidInputError("session_id is required")
	}

	ref, err := s.saveUpload(c)
	if err != nil {
		return err
	}
	req.ImageRef = ref

	resp, err := s.agent.Handle(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, chatResponse{Response: resp.Answer, SessionID: resp.SessionID})
}

// saveUpload stores the optional image field as <uuid><ext> and returns its
// served path.
func (s *Server) saveUpload(c echo.Context) (string, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		return "", agrisage.NewInvalidInputError(fmt.Sprintf("invalid image upload: %v", err))
	}
	if fh.Size > s.options.MaxUploadBytes {
		return "", agrisage.NewInvalidInputError(fmt.Sprintf("image exceeds %d bytes", s.options.MaxUploadBytes))
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := uuid.NewString() + strings.ToLower(filepath.Ext(fh.Filename))
	dst, err := os.Create(filepath.Join(s.options.UploadDir, name))
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return classifier.UploadsRoute + name, nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, s.agent.Health(c.Request().Context()))
}

// handleError maps orchestrator error codes onto HTTP statuses.
func (s *Server) handleError(err error, c echo.Context) {
	code, msg := StatusFor(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
	}
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}

// StatusFor returns the HTTP status and client message for err.
func StatusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprint(he.Message)
	}
	var ae *agrisage.AgriSageError
	if errors.As(err, &ae) {
		switch ae.Code {
		case agrisage.ErrCodeInvalidInput:
			return http.StatusBadRequest, ae.Message
		case agrisage.ErrCodeServiceUnavailable:
			return http.StatusServiceUnavailable, ae.Message
		}
		return http.StatusInternalServerError, "An internal error occurred: " + ae.Message
	}
	return http.StatusInternalServerError, "An internal error occurred"
}
