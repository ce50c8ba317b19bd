package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/framestep/internal/session"
	"github.com/samcharles93/framestep/pkg/frame"
)

// streamRun steps sess until it finishes, sending one event per step. A done
// ctx cancels a live frame, so the stream always ends with a finished or
// failed event.
func (s *Server) streamRun(ctx context.Context, c *echo.Context, sess session.Session) error {
	res := c.Response()
	flusher, ok := res.(http.Flusher)
	if !ok {
		return writeBadRequest(c, "streaming unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	seq := 0
	send := func(ev StepEvent) error {
		seq++
		ev.SequenceNumber = seq
		if err := sendEvent(res, ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	for {
		if ctx.Err() != nil {
			sess.Interrupt()
		}
		step, err := sess.Step(ctx)
		if err != nil {
			_, body := errorBody(err)
			return send(StepEvent{Type: eventFailed, Error: &body})
		}
		view := session.NewStepView(step)
		if step.Finished() {
			snap := sess.Snapshot()
			return send(StepEvent{Type: eventFinished, Result: &view, Frame: &snap})
		}
		if err := send(StepEvent{Type: eventStep, Result: &view}); err != nil {
			s.log.Warn("stream write failed", "session", sess.ID(), "error", err)
			sess.Interrupt()
			return nil
		}
		if step.Outcome == frame.Yielded {
			sess.Backoff(ctx)
		}
	}
}

func sendEvent(w io.Writer, ev StepEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}
