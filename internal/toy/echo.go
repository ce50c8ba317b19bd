// Package toy holds a small deterministic backend used by the demo harnesses
// and tests. It replays its prompt instead of running a model.
package toy

import (
	"context"
	"errors"

	"github.com/samcharles93/framestep/pkg/frame"
)

// Receipt kinds reported by EchoStepper.
const (
	ReceiptPrefillTokens = "prefill.tokens"
	ReceiptContextLen    = "context.len"
)

var (
	errNilMemory    = errors.New("toy: nil memory")
	errEmptyContext = errors.New("toy: decode with empty context")
)

// Memory is the echo backend's simulated KV context. It grows by one entry
// per prefilled or emitted token.
type Memory struct {
	Context []uint32

	stop frame.StopReason
}

// EchoStepper prefills one prompt token per step and then emits tokens from
// its context in order, wrapping around. Emitting EOS finishes the run.
type EchoStepper struct {
	EOS    uint32
	HasEOS bool
}

// NewEchoStepper returns an EchoStepper without an EOS token.
func NewEchoStepper() EchoStepper {
	return EchoStepper{}
}

// WithEOS returns a copy of s that stops when tok would be emitted.
func (s EchoStepper) WithEOS(tok uint32) EchoStepper {
	s.EOS = tok
	s.HasEOS = true
	return s
}

func (s EchoStepper) Step(ctx context.Context, f *frame.Frame[*Memory]) (frame.StepResult, error) {
	switch f.State {
	case frame.Finished:
		if f.Mem != nil {
			return frame.Finish(f.Mem.stop), nil
		}
		return frame.Finish(frame.StopMaxTokens), nil
	case frame.Cancelled:
		return frame.Finish(frame.StopCancelled), nil
	}
	if f.Mem == nil {
		return frame.StepResult{}, frame.BackendFailure(errNilMemory)
	}
	if err := ctx.Err(); err != nil {
		return frame.StepResult{}, frame.BackendFailure(err)
	}

	if f.State == frame.Prefill {
		return s.prefill(f), nil
	}
	return s.decode(f)
}

func (s EchoStepper) prefill(f *frame.Frame[*Memory]) frame.StepResult {
	var consumed uint64
	if f.PromptIndex < len(f.PromptTokenIDs) {
		f.Mem.Context = append(f.Mem.Context, f.PromptTokenIDs[f.PromptIndex])
		f.PromptIndex++
		f.Cursor.Advance()
		consumed = 1
	}
	if f.PromptIndex >= len(f.PromptTokenIDs) {
		f.State = frame.Decode
	}
	return frame.AdvancedWith(nil).WithReceipt(ReceiptPrefillTokens, consumed)
}

func (s EchoStepper) decode(f *frame.Frame[*Memory]) (frame.StepResult, error) {
	if f.TokensGenerated >= f.Limits.MaxTokens {
		return s.finish(f, frame.StopMaxTokens), nil
	}
	if len(f.Mem.Context) == 0 {
		return frame.StepResult{}, frame.BackendFailure(errEmptyContext)
	}

	tok := f.Mem.Context[f.TokensGenerated%len(f.Mem.Context)]
	if s.HasEOS && tok == s.EOS {
		return s.finish(f, frame.StopEos), nil
	}

	f.Mem.Context = append(f.Mem.Context, tok)
	f.GeneratedTokenIDs = append(f.GeneratedTokenIDs, tok)
	f.TokensGenerated++
	f.Cursor.Advance()
	return frame.AdvancedToken(tok).WithReceipt(ReceiptContextLen, uint64(len(f.Mem.Context))), nil
}

func (s EchoStepper) finish(f *frame.Frame[*Memory], reason frame.StopReason) frame.StepResult {
	f.State = frame.Finished
	f.Mem.stop = reason
	return frame.Finish(reason)
}
