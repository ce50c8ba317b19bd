// Package policy provides Arbiter implementations for frame.Driver.
//
// Every arbiter here keeps its state private to the instance. None of them
// touch the frame.
package policy

import "github.com/samcharles93/framestep/pkg/frame"

// EveryNth yields on every Nth decision and allows the rest. It throttles a
// run without changing what it generates. N <= 0 never yields.
type EveryNth[M any] struct {
	n     int
	ticks uint64
}

func NewEveryNth[M any](n int) *EveryNth[M] {
	return &EveryNth[M]{n: n}
}

func (a *EveryNth[M]) Decide(frame.View[M]) frame.Decision {
	a.ticks++
	if a.n > 0 && a.ticks%uint64(a.n) == 0 {
		return frame.Yield
	}
	return frame.Allow
}

// Ticks returns how many decisions have been made.
func (a *EveryNth[M]) Ticks() uint64 {
	return a.ticks
}

// Budget refuses once the cursor reaches a position limit. A limit of zero or
// less disables it.
type Budget[M any] struct {
	limit int64
}

func NewBudget[M any](limit int64) Budget[M] {
	return Budget[M]{limit: limit}
}

func (b Budget[M]) Decide(v frame.View[M]) frame.Decision {
	if b.limit > 0 && int64(v.Position()) >= b.limit {
		return frame.Refuse
	}
	return frame.Allow
}

// Chain consults arbiters in order and returns the first decision that is not
// Allow. Arbiters after that one are not consulted for the step.
type Chain[M any] []frame.Arbiter[M]

func (c Chain[M]) Decide(v frame.View[M]) frame.Decision {
	for _, a := range c {
		if a == nil {
			continue
		}
		if d := a.Decide(v); d != frame.Allow {
			return d
		}
	}
	return frame.Allow
}
