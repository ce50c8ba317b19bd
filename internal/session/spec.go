package session

import (
	"errors"
	"fmt"
	"strings"
)

// Backend names accepted in Spec.Backend.
const (
	BackendNoop   = "noop"
	BackendEcho   = "echo"
	BackendSample = "sample"
)

const (
	// DefaultVocab is the sample backend's vocabulary when Spec.Vocab is unset.
	DefaultVocab = 256
	// MaxVocab bounds Spec.Vocab; the sample backend scores every id per step.
	MaxVocab = 1 << 20
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrInvalidSpec = errors.New("invalid session spec")
)

type invalidSpecError struct {
	msg string
}

func (e invalidSpecError) Error() string {
	return e.msg
}

func (e invalidSpecError) Unwrap() error {
	return ErrInvalidSpec
}

func invalidSpec(format string, args ...any) error {
	return invalidSpecError{msg: fmt.Sprintf(format, args...)}
}

// Spec describes a session: which backend drives the frame, its limits, and
// the arbiter policies consulted before every step. Zero values disable the
// optional policies.
type Spec struct {
	Backend   string   `json:"backend"`
	MaxTokens int      `json:"max_tokens"`
	Prompt    []uint32 `json:"prompt,omitempty"`
	EOS       *uint32  `json:"eos_token,omitempty"`

	YieldEvery  int     `json:"yield_every,omitempty"`
	RefuseAfter int64   `json:"refuse_after,omitempty"`
	Rate        float64 `json:"rate,omitempty"`
	Burst       int     `json:"burst,omitempty"`

	// Sample backend only.
	Vocab         int     `json:"vocab,omitempty"`
	Seed          int64   `json:"seed,omitempty"`
	Temperature   float32 `json:"temperature,omitempty"`
	TopK          int     `json:"top_k,omitempty"`
	TopP          float32 `json:"top_p,omitempty"`
	RepeatPenalty float32 `json:"repeat_penalty,omitempty"`
}

// backend returns the normalised backend name. Empty means noop.
func (s Spec) backend() string {
	b := strings.ToLower(strings.TrimSpace(s.Backend))
	if b == "" {
		return BackendNoop
	}
	return b
}

func (s Spec) vocab() int {
	if s.Vocab == 0 {
		return DefaultVocab
	}
	return s.Vocab
}

func (s Spec) Validate() error {
	switch s.backend() {
	case BackendNoop:
		if s.EOS != nil {
			return invalidSpec("eos_token is not supported by the %s backend", BackendNoop)
		}
	case BackendEcho:
		if len(s.Prompt) == 0 && s.MaxTokens > 0 {
			return invalidSpec("the %s backend needs a prompt to generate tokens", BackendEcho)
		}
	case BackendSample:
		if s.Vocab < 0 || s.Vocab > MaxVocab {
			return invalidSpec("vocab must be within [0, %d], got %d", MaxVocab, s.Vocab)
		}
		if s.EOS != nil && int64(*s.EOS) >= int64(s.vocab()) {
			return invalidSpec("eos_token %d outside vocab of %d", *s.EOS, s.vocab())
		}
		if s.TopP < 0 || s.TopP > 1 {
			return invalidSpec("top_p must be within [0, 1], got %g", s.TopP)
		}
	default:
		return invalidSpec("unknown backend %q", s.Backend)
	}
	if s.MaxTokens < 0 {
		return invalidSpec("max_tokens must be >= 0, got %d", s.MaxTokens)
	}
	if s.YieldEvery < 0 {
		return invalidSpec("yield_every must be >= 0, got %d", s.YieldEvery)
	}
	if s.RefuseAfter < 0 {
		return invalidSpec("refuse_after must be >= 0, got %d", s.RefuseAfter)
	}
	if s.Rate < 0 {
		return invalidSpec("rate must be >= 0, got %g", s.Rate)
	}
	if s.Burst < 0 {
		return invalidSpec("burst must be >= 0, got %d", s.Burst)
	}
	return nil
}
