package frame

import "slices"

// Decision is an Arbiter's verdict for one step.
type Decision uint8

const (
	// Allow lets the Stepper do its unit of work.
	Allow Decision = iota
	// Yield skips the Stepper for this call without any progress.
	Yield
	// Refuse cancels the frame as a policy decision.
	Refuse
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Yield:
		return "yield"
	case Refuse:
		return "refuse"
	default:
		return "unknown"
	}
}

// Arbiter is the policy oracle consulted once per non-terminal step. It may
// keep private state of its own but must never execute backend work.
type Arbiter[M any] interface {
	Decide(v View[M]) Decision
}

// ArbiterFunc adapts a function to Arbiter.
type ArbiterFunc[M any] func(v View[M]) Decision

func (fn ArbiterFunc[M]) Decide(v View[M]) Decision {
	return fn(v)
}

// AllowAll is the default Arbiter. It allows every step.
type AllowAll[M any] struct{}

func (AllowAll[M]) Decide(View[M]) Decision {
	return Allow
}

// View is a read-only window over a Frame handed to an Arbiter. Buffer
// accessors return copies.
type View[M any] struct {
	f *Frame[M]
}

// ViewOf returns a read-only view of f.
func ViewOf[M any](f *Frame[M]) View[M] {
	return View[M]{f: f}
}

func (v View[M]) State() FrameState { return v.f.State }
func (v View[M]) Position() uint32  { return v.f.Cursor.Position }
func (v View[M]) MaxTokens() int    { return v.f.Limits.MaxTokens }
func (v View[M]) PromptIndex() int  { return v.f.PromptIndex }
func (v View[M]) PromptLen() int    { return len(v.f.PromptTokenIDs) }

func (v View[M]) TokensGenerated() int { return v.f.TokensGenerated }

// Prompt returns a copy of the prompt buffer.
func (v View[M]) Prompt() []uint32 {
	return slices.Clone(v.f.PromptTokenIDs)
}

// Generated returns a copy of the generated token buffer.
func (v View[M]) Generated() []uint32 {
	return slices.Clone(v.f.GeneratedTokenIDs)
}

// Mem returns the backend memory handle. Arbiters must treat it as opaque.
func (v View[M]) Mem() M {
	return v.f.Mem
}
