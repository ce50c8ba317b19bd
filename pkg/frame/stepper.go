package frame

import "context"

// Stepper is the backend contract. Step performs exactly one bounded unit of
// work on f and moves f.State along the state machine itself:
//
//	Prefill -> Decode            Advanced, no token
//	Decode  -> Decode            Advanced, token emitted
//	Decode  -> Finished          Finish(reason)
//	Finished | Cancelled -> self Finish(same reason), no mutation
//
// A Stepper called on a terminal frame must return the matching Finish result
// and leave the frame untouched. Errors are fatal for the run; the Driver
// forwards them unchanged and never retries.
type Stepper[M any] interface {
	Step(ctx context.Context, f *Frame[M]) (StepResult, error)
}

// StepperFunc adapts a function to Stepper.
type StepperFunc[M any] func(ctx context.Context, f *Frame[M]) (StepResult, error)

func (fn StepperFunc[M]) Step(ctx context.Context, f *Frame[M]) (StepResult, error) {
	return fn(ctx, f)
}
