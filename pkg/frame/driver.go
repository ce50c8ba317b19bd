package frame

import "context"

// Driver owns the scheduling loop for one Frame. One Step call is one
// scheduling decision. A Driver is not safe for concurrent use; callers that
// need parallelism create one Frame/Driver pair per request.
type Driver[M any] struct {
	frame   Frame[M]
	stepper Stepper[M]
	arbiter Arbiter[M]

	// stop is the reason reported by the Stepper when it finished the frame.
	stop    StopReason
	hasStop bool
}

// NewDriver returns a Driver that allows every step.
func NewDriver[M any](f Frame[M], s Stepper[M]) *Driver[M] {
	return NewDriverWithArbiter[M](f, s, AllowAll[M]{})
}

// NewDriverWithArbiter returns a Driver gated by a. A nil Arbiter allows
// every step.
func NewDriverWithArbiter[M any](f Frame[M], s Stepper[M], a Arbiter[M]) *Driver[M] {
	if a == nil {
		a = AllowAll[M]{}
	}
	return &Driver[M]{
		frame:   f,
		stepper: s,
		arbiter: a,
	}
}

// Frame returns the frame owned by d. Callers may read it between steps;
// they must not mutate it except through Cancel.
func (d *Driver[M]) Frame() *Frame[M] {
	return &d.frame
}

// Step runs one scheduling decision.
//
// A terminal frame short-circuits without consulting the Arbiter or the
// Stepper and always reports the same result. Otherwise the Arbiter decides:
// Allow delegates to the Stepper and returns its result or error unchanged,
// Yield returns a Yielded result without touching the frame, and Refuse
// cancels the frame.
func (d *Driver[M]) Step(ctx context.Context) (StepResult, error) {
	switch d.frame.State {
	case Finished:
		if d.hasStop {
			return Finish(d.stop), nil
		}
		return Finish(StopMaxTokens), nil
	case Cancelled:
		return Finish(StopCancelled), nil
	}

	switch d.arbiter.Decide(ViewOf(&d.frame)) {
	case Yield:
		return YieldResult(), nil
	case Refuse:
		d.frame.Cancel()
		return Finish(StopCancelled), nil
	}

	res, err := d.stepper.Step(ctx, &d.frame)
	if err != nil {
		return res, err
	}
	if d.frame.State == Finished && !d.hasStop {
		if reason, ok := res.Reason(); ok {
			d.stop = reason
			d.hasStop = true
		}
	}
	return res, nil
}

// RunToCompletion steps until a Finished outcome and returns that result.
// Backend errors abort the loop and are returned unchanged. When ctx is done
// between steps a live frame is cancelled, so the run ends as cancelled rather
// than with a context error. A terminal frame keeps its result.
//
// An Arbiter that yields forever keeps RunToCompletion looping until ctx is
// done.
func (d *Driver[M]) RunToCompletion(ctx context.Context) (StepResult, error) {
	for {
		if ctx.Err() != nil && !d.frame.State.Terminal() {
			d.frame.Cancel()
		}
		res, err := d.Step(ctx)
		if err != nil {
			return res, err
		}
		if res.Finished() {
			return res, nil
		}
	}
}
