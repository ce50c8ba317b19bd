package frame

import "context"

// NoopMem is the memory handle of NoopStepper. It holds nothing.
type NoopMem struct{}

// NoopStepper is a deterministic toy backend. Prefill moves straight to
// Decode; each Decode step emits Position%256 until MaxTokens tokens exist.
type NoopStepper struct{}

func (NoopStepper) Step(_ context.Context, f *Frame[NoopMem]) (StepResult, error) {
	switch f.State {
	case Prefill:
		f.State = Decode
		return AdvancedWith(nil), nil
	case Decode:
		if f.TokensGenerated >= f.Limits.MaxTokens {
			f.State = Finished
			return Finish(StopMaxTokens), nil
		}
		tok := f.Cursor.Position % 256
		f.GeneratedTokenIDs = append(f.GeneratedTokenIDs, tok)
		f.TokensGenerated++
		f.Cursor.Advance()
		return AdvancedToken(tok), nil
	case Cancelled:
		return Finish(StopCancelled), nil
	default:
		return Finish(StopMaxTokens), nil
	}
}
