// Package frame implements a deterministic, single-step execution law for
// iterative generation loops.
//
// A backend implements Stepper and performs exactly one bounded unit of work
// per call. The Driver owns the scheduling loop, consults an Arbiter once per
// step and returns a uniform StepResult for every call. Nothing in this
// package performs I/O or knows how tokens are produced.
package frame

import "slices"

// FrameState is the lifecycle state of a Frame.
type FrameState uint8

const (
	Prefill FrameState = iota
	Decode
	Finished
	Cancelled
)

// Terminal reports whether s is absorbing. No mutation happens once a frame
// is Finished or Cancelled.
func (s FrameState) Terminal() bool {
	return s == Finished || s == Cancelled
}

func (s FrameState) String() string {
	switch s {
	case Prefill:
		return "prefill"
	case Decode:
		return "decode"
	case Finished:
		return "finished"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Cursor tracks the frame position. Position never decreases.
type Cursor struct {
	Position uint32
}

// Advance moves the cursor forward by one, saturating at the maximum.
func (c *Cursor) Advance() {
	if c.Position < ^uint32(0) {
		c.Position++
	}
}

type Limits struct {
	MaxTokens int
}

// Frame is the mutable execution context of one generation run. M is the
// backend-owned memory handle; the Driver and Arbiter never interpret it.
//
// A Frame is owned by exactly one Driver at a time. Steppers keep
// TokensGenerated equal to len(GeneratedTokenIDs) and PromptIndex within
// len(PromptTokenIDs).
type Frame[M any] struct {
	State  FrameState
	Cursor Cursor
	Limits Limits
	Mem    M

	PromptTokenIDs []uint32
	PromptIndex    int

	GeneratedTokenIDs []uint32
	TokensGenerated   int
}

// New returns a fresh Prefill frame with empty buffers.
func New[M any](mem M, maxTokens int) Frame[M] {
	return Frame[M]{
		State:  Prefill,
		Limits: Limits{MaxTokens: maxTokens},
		Mem:    mem,
	}
}

// WithPrompt is New with the prompt buffer seeded from a copy of prompt.
func WithPrompt[M any](mem M, maxTokens int, prompt []uint32) Frame[M] {
	f := New(mem, maxTokens)
	f.PromptTokenIDs = slices.Clone(prompt)
	return f
}

// Cancel moves the frame to Cancelled. It is safe from any state and
// idempotent.
func (f *Frame[M]) Cancel() {
	f.State = Cancelled
}
