package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/framestep/internal/session"
	"github.com/samcharles93/framestep/pkg/frame"
)

const maxBodyBytes = 1 << 20

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "")
}

func writeError(c *echo.Context, status int, errType, msg, param string) error {
	return c.JSON(status, ErrorEnvelope{Error: ErrorBody{
		Message: msg,
		Type:    errType,
		Param:   param,
	}})
}

// errorBody maps an error from the session layer to its status and envelope.
func errorBody(err error) (int, ErrorBody) {
	var ire invalidRequestError
	switch {
	case errors.As(err, &ire):
		return http.StatusBadRequest, ErrorBody{Message: ire.msg, Type: "invalid_request_error", Param: ire.field}
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, session.ErrInvalidSpec):
		return http.StatusBadRequest, ErrorBody{Message: err.Error(), Type: "invalid_request_error"}
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Message: "frame not found", Type: "not_found_error"}
	case errors.Is(err, frame.ErrBackend):
		return http.StatusInternalServerError, ErrorBody{Message: err.Error(), Type: "backend_error"}
	default:
		return http.StatusInternalServerError, ErrorBody{Message: err.Error(), Type: "server_error"}
	}
}

func writeErr(c *echo.Context, err error) error {
	status, body := errorBody(err)
	return c.JSON(status, ErrorEnvelope{Error: body})
}

// decodeJSON reads at most maxBodyBytes and rejects unknown fields. An empty
// body decodes to the zero value.
func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	b, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return out, err
	}
	if len(b) > maxBodyBytes {
		return out, newInvalidRequest("", "request body exceeds %d bytes", maxBodyBytes)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest("", "invalid JSON body: %v", err)
	}
	return out, nil
}
