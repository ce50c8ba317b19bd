package session

import (
	"slices"
	"time"

	"github.com/samcharles93/framestep/pkg/frame"
)

// Snapshot is a plain copy of a session's frame and call counters.
type Snapshot struct {
	ID              string    `json:"id"`
	Backend         string    `json:"backend"`
	State           string    `json:"state"`
	Position        uint32    `json:"position"`
	MaxTokens       int       `json:"max_tokens"`
	PromptIndex     int       `json:"prompt_index"`
	PromptLen       int       `json:"prompt_len"`
	TokensGenerated int       `json:"tokens_generated"`
	Generated       []uint32  `json:"generated"`
	Steps           uint64    `json:"steps"`
	Yields          uint64    `json:"yields"`
	CreatedAt       time.Time `json:"created_at"`
}

type ReceiptView struct {
	Kind  string `json:"kind"`
	Value uint64 `json:"value"`
}

// StepView renders a StepResult for JSON output.
type StepView struct {
	Outcome    string        `json:"outcome"`
	Token      *uint32       `json:"token,omitempty"`
	StopReason string        `json:"stop_reason,omitempty"`
	Receipts   []ReceiptView `json:"receipts,omitempty"`
}

func NewStepView(res frame.StepResult) StepView {
	v := StepView{Outcome: res.Outcome.String()}
	if tok, ok := res.Token(); ok {
		v.Token = &tok
	}
	if reason, ok := res.Reason(); ok {
		v.StopReason = reason.String()
	}
	for _, r := range res.Receipts {
		v.Receipts = append(v.Receipts, ReceiptView{Kind: r.Kind, Value: r.Value})
	}
	return v
}

func snapshotOf[M any](id, backend string, f *frame.Frame[M], steps, yields uint64, created time.Time) Snapshot {
	generated := slices.Clone(f.GeneratedTokenIDs)
	if generated == nil {
		generated = []uint32{}
	}
	return Snapshot{
		ID:              id,
		Backend:         backend,
		State:           f.State.String(),
		Position:        f.Cursor.Position,
		MaxTokens:       f.Limits.MaxTokens,
		PromptIndex:     f.PromptIndex,
		PromptLen:       len(f.PromptTokenIDs),
		TokensGenerated: f.TokensGenerated,
		Generated:       generated,
		Steps:           steps,
		Yields:          yields,
		CreatedAt:       created,
	}
}
