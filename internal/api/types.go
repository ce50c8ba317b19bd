package api

import "github.com/samcharles93/framestep/internal/session"

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// StepResponse is returned by the step and run routes.
type StepResponse struct {
	Result session.StepView `json:"result"`
	Frame  session.Snapshot `json:"frame"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// StepEvent is one server-sent event of a streamed run.
type StepEvent struct {
	Type           string            `json:"type"`
	Result         *session.StepView `json:"result,omitempty"`
	Frame          *session.Snapshot `json:"frame,omitempty"`
	Error          *ErrorBody        `json:"error,omitempty"`
	SequenceNumber int               `json:"sequence_number"`
}

// Stream event types.
const (
	eventStep     = "frame.step"
	eventFinished = "frame.finished"
	eventFailed   = "frame.failed"
)
