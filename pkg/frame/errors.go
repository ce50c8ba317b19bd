package frame

import "errors"

// ErrBackend matches every failure reported through BackendFailure.
var ErrBackend = errors.New("backend failure")

type backendError struct {
	err error
}

func (e backendError) Error() string {
	if e.err == nil {
		return ErrBackend.Error()
	}
	return ErrBackend.Error() + ": " + e.err.Error()
}

func (e backendError) Is(target error) bool {
	return target == ErrBackend
}

func (e backendError) Unwrap() error {
	return e.err
}

// BackendFailure marks err as a fatal backend failure. The result matches
// ErrBackend with errors.Is and unwraps to err.
func BackendFailure(err error) error {
	return backendError{err: err}
}
