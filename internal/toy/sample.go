package toy

import (
	"context"
	"errors"

	"github.com/samcharles93/framestep/pkg/frame"
)

var errNoVocab = errors.New("toy: sample stepper needs a positive vocabulary")

// SampleMemory is the sampling backend's context plus its per-frame RNG.
type SampleMemory struct {
	Context []uint32

	sampler *sampler
	logits  []float32
	stop    frame.StopReason
}

func NewSampleMemory(cfg SamplerConfig) *SampleMemory {
	return &SampleMemory{sampler: newSampler(cfg)}
}

// SampleStepper prefills the whole prompt in one step, then samples each
// token from scores that favour the successor of the last context token.
// With greedy sampling it counts upward modulo Vocab.
type SampleStepper struct {
	Vocab  int
	EOS    uint32
	HasEOS bool
}

func NewSampleStepper(vocab int) SampleStepper {
	return SampleStepper{Vocab: vocab}
}

func (s SampleStepper) WithEOS(tok uint32) SampleStepper {
	s.EOS = tok
	s.HasEOS = true
	return s
}

func (s SampleStepper) Step(ctx context.Context, f *frame.Frame[*SampleMemory]) (frame.StepResult, error) {
	switch f.State {
	case frame.Finished:
		if f.Mem != nil {
			return frame.Finish(f.Mem.stop), nil
		}
		return frame.Finish(frame.StopMaxTokens), nil
	case frame.Cancelled:
		return frame.Finish(frame.StopCancelled), nil
	}
	if f.Mem == nil || f.Mem.sampler == nil {
		return frame.StepResult{}, frame.BackendFailure(errNilMemory)
	}
	if s.Vocab <= 0 {
		return frame.StepResult{}, frame.BackendFailure(errNoVocab)
	}
	if err := ctx.Err(); err != nil {
		return frame.StepResult{}, frame.BackendFailure(err)
	}

	if f.State == frame.Prefill {
		rest := f.PromptTokenIDs[f.PromptIndex:]
		f.Mem.Context = append(f.Mem.Context, rest...)
		for range rest {
			f.Cursor.Advance()
		}
		f.PromptIndex = len(f.PromptTokenIDs)
		f.State = frame.Decode
		return frame.AdvancedWith(nil).WithReceipt(ReceiptPrefillTokens, uint64(len(rest))), nil
	}

	if f.TokensGenerated >= f.Limits.MaxTokens {
		f.State = frame.Finished
		f.Mem.stop = frame.StopMaxTokens
		return frame.Finish(frame.StopMaxTokens), nil
	}

	tok := f.Mem.sampler.sample(s.score(f.Mem), f.Mem.Context)
	if s.HasEOS && tok == s.EOS {
		f.State = frame.Finished
		f.Mem.stop = frame.StopEos
		return frame.Finish(frame.StopEos), nil
	}
	f.Mem.Context = append(f.Mem.Context, tok)
	f.GeneratedTokenIDs = append(f.GeneratedTokenIDs, tok)
	f.TokensGenerated++
	f.Cursor.Advance()
	return frame.AdvancedToken(tok).WithReceipt(ReceiptContextLen, uint64(len(f.Mem.Context))), nil
}

// score fills the memory's logits buffer. Each id scores minus half its
// circular distance from the successor of the last context token.
func (s SampleStepper) score(m *SampleMemory) []float32 {
	if cap(m.logits) < s.Vocab {
		m.logits = make([]float32, s.Vocab)
	}
	logits := m.logits[:s.Vocab]

	target := 0
	if n := len(m.Context); n > 0 {
		target = int((uint64(m.Context[n-1]) + 1) % uint64(s.Vocab))
	}
	for v := range logits {
		d := (v - target + s.Vocab) % s.Vocab
		d = min(d, s.Vocab-d)
		logits[v] = -0.5 * float32(d)
	}
	return logits
}
