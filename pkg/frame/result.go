package frame

import "slices"

// StepOutcome classifies a single Driver.Step call.
type StepOutcome uint8

const (
	Advanced StepOutcome = iota
	Yielded
	Done
)

func (o StepOutcome) String() string {
	switch o {
	case Advanced:
		return "advanced"
	case Yielded:
		return "yielded"
	case Done:
		return "finished"
	default:
		return "unknown"
	}
}

// StopReason records why a run ended.
type StopReason uint8

const (
	StopMaxTokens StopReason = iota
	StopEos
	StopCancelled
	StopBackendError
)

func (r StopReason) String() string {
	switch r {
	case StopMaxTokens:
		return "max_tokens"
	case StopEos:
		return "eos"
	case StopCancelled:
		return "cancelled"
	case StopBackendError:
		return "backend_error"
	default:
		return "unknown"
	}
}

// ReceiptArbiterYield is attached to every result fabricated for a Yield
// decision.
const ReceiptArbiterYield = "arbiter.yield"

// Receipt is a side-channel observation attached to a StepResult. Receipts
// never change how a result is interpreted.
type Receipt struct {
	Kind  string
	Value uint64
}

// StepResult is the envelope returned by every step. EmittedToken is set only
// when a token was produced by this call, StopReason only when Outcome is
// Done.
type StepResult struct {
	Outcome      StepOutcome
	EmittedToken *uint32
	StopReason   *StopReason
	Receipts     []Receipt
}

// AdvancedWith reports progress, optionally with an emitted token.
func AdvancedWith(tok *uint32) StepResult {
	r := StepResult{Outcome: Advanced}
	if tok != nil {
		t := *tok
		r.EmittedToken = &t
	}
	return r
}

// AdvancedToken reports progress that emitted tok.
func AdvancedToken(tok uint32) StepResult {
	return StepResult{Outcome: Advanced, EmittedToken: &tok}
}

// Finish reports a terminal outcome.
func Finish(reason StopReason) StepResult {
	return StepResult{Outcome: Done, StopReason: &reason}
}

// YieldResult reports a skipped call with the arbiter receipt attached.
func YieldResult() StepResult {
	return StepResult{
		Outcome:  Yielded,
		Receipts: []Receipt{{Kind: ReceiptArbiterYield, Value: 1}},
	}
}

// Token returns the emitted token, if any.
func (r StepResult) Token() (uint32, bool) {
	if r.EmittedToken == nil {
		return 0, false
	}
	return *r.EmittedToken, true
}

// Reason returns the stop reason, if any.
func (r StepResult) Reason() (StopReason, bool) {
	if r.StopReason == nil {
		return 0, false
	}
	return *r.StopReason, true
}

// Finished reports whether the outcome is terminal.
func (r StepResult) Finished() bool {
	return r.Outcome == Done
}

// WithReceipt returns a copy of r with an extra receipt appended. The
// receiver's receipt slice is never shared with the copy.
func (r StepResult) WithReceipt(kind string, value uint64) StepResult {
	r.Receipts = append(slices.Clip(r.Receipts), Receipt{Kind: kind, Value: value})
	return r
}
