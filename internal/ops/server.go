// Package ops provides the ambient HTTP health/status surface. It has no
// analog in spec.md's protocol (the chat protocol itself is raw TCP+AEAD,
// not HTTP) but every ambient concern the teacher carries — here, the
// teacher's internal/httpapi Echo app — is kept per SPEC_FULL.md's
// "ambient stack regardless of non-goals" rule. Grounded directly on
// internal/httpapi/server.go: same echo.New()+Recover()+slog request
// logger construction, same /health shape, generalized from channel/client
// counts to this domain's online-session/upload/user/message counts.
package ops

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"relaychat/server/internal/presence"
	"relaychat/server/internal/uploads"
	"relaychat/server/store"
)

// Server is the Echo application backing /healthz and /metrics.
type Server struct {
	echo     *echo.Echo
	store    *store.Store
	presence *presence.Table
	uploads  *uploads.Table
}

// New constructs the ops HTTP app.
func New(st *store.Store, pres *presence.Table, up *uploads.Table) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, store: st, presence: pres, uploads: up}
	s.registerRoutes()
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			slog.Debug("ops http request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/metrics", s.handleMetrics)
}

// Run starts the ops HTTP server and blocks until ctx cancellation or
// startup failure, mirroring internal/httpapi/server.go's Run.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down ops http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthzResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, healthzResponse{Status: "ok"})
}

type metricsResponse struct {
	OnlineSessions int `json:"online_sessions"`
	UploadsInFlight int `json:"uploads_in_flight"`
	Users          int `json:"users"`
	Messages       int `json:"messages"`
}

func (s *Server) handleMetrics(c echo.Context) error {
	users, err := s.store.UserCount()
	if err != nil {
		slog.Error("ops metrics: user count", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "store unavailable")
	}
	messages, err := s.store.MessageCount()
	if err != nil {
		slog.Error("ops metrics: message count", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "store unavailable")
	}
	return c.JSON(http.StatusOK, metricsResponse{
		OnlineSessions:  s.presence.OnlineCount(),
		UploadsInFlight: s.uploads.Count(),
		Users:           users,
		Messages:        messages,
	})
}
