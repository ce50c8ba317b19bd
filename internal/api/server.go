// Package api exposes sessions over HTTP so a client can drive a frame one
// scheduling decision at a time.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/framestep/internal/logger"
	"github.com/samcharles93/framestep/internal/metrics"
	"github.com/samcharles93/framestep/internal/session"
)

type Config struct {
	// RunTimeout bounds /run. When it expires the frame is cancelled. Zero
	// means only the client's request context applies.
	RunTimeout time.Duration
	// MaxTokens caps the max_tokens a client may request. Zero disables it.
	MaxTokens int
}

type Server struct {
	store   *session.Store
	metrics *metrics.Collector
	log     logger.Logger
	cfg     Config
}

func NewServer(store *session.Store, m *metrics.Collector, log logger.Logger, cfg Config) *Server {
	if log == nil {
		log = logger.Discard()
	}
	if store == nil {
		store = session.NewStore(log, m)
	}
	return &Server{
		store:   store,
		metrics: m,
		log:     log,
		cfg:     cfg,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/frames", s.handleCreate)
	e.GET("/v1/frames/:id", s.handleGet)
	e.DELETE("/v1/frames/:id", s.handleDelete)
	e.POST("/v1/frames/:id/step", s.handleStep)
	e.POST("/v1/frames/:id/run", s.handleRun)
	e.POST("/v1/frames/:id/cancel", s.handleCancel)

	if s.metrics != nil {
		h := s.metrics.Handler()
		e.GET("/metrics", func(c *echo.Context) error {
			h.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}
}

func (s *Server) handleCreate(c *echo.Context) error {
	spec, err := decodeJSON[session.Spec](c.Request().Body)
	if err != nil {
		return writeErr(c, err)
	}
	if s.cfg.MaxTokens > 0 && spec.MaxTokens > s.cfg.MaxTokens {
		return writeErr(c, newInvalidRequest("max_tokens", "must be <= %d", s.cfg.MaxTokens))
	}
	sess, err := s.store.Create(spec)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGet(c *echo.Context) error {
	sess, err := s.lookup(c)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDelete(c *echo.Context) error {
	id := c.Param("id")
	if err := s.store.Delete(id); err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, DeleteResponse{ID: id, Object: "frame", Deleted: true})
}

func (s *Server) handleStep(c *echo.Context) error {
	sess, err := s.lookup(c)
	if err != nil {
		return writeErr(c, err)
	}
	res, err := sess.Step(c.Request().Context())
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, StepResponse{
		Result: session.NewStepView(res),
		Frame:  sess.Snapshot(),
	})
}

func (s *Server) handleRun(c *echo.Context) error {
	sess, err := s.lookup(c)
	if err != nil {
		return writeErr(c, err)
	}

	ctx := c.Request().Context()
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	if streamParam(c) {
		return s.streamRun(ctx, c, sess)
	}

	res, err := sess.Run(ctx)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, StepResponse{
		Result: session.NewStepView(res),
		Frame:  sess.Snapshot(),
	})
}

func (s *Server) handleCancel(c *echo.Context) error {
	sess, err := s.lookup(c)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, sess.Cancel())
}

func (s *Server) lookup(c *echo.Context) (session.Session, error) {
	id := c.Param("id")
	if id == "" {
		return nil, session.ErrNotFound
	}
	return s.store.Get(id)
}

func streamParam(c *echo.Context) bool {
	switch c.QueryParam("stream") {
	case "1", "true":
		return true
	default:
		return false
	}
}
