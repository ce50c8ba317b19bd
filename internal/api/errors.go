package api

import (
	"errors"
	"fmt"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	field string
	msg   string
}

func (e invalidRequestError) Error() string {
	if e.field == "" {
		return e.msg
	}
	return e.field + ": " + e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(field, format string, args ...any) error {
	return invalidRequestError{field: field, msg: fmt.Sprintf(format, args...)}
}
