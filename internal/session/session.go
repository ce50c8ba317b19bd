// Package session hosts frame drivers behind a type-erased interface so
// callers that don't know a backend's memory type (the HTTP harness, the
// CLI) can create, step and inspect them.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/framestep/internal/logger"
	"github.com/samcharles93/framestep/internal/metrics"
	"github.com/samcharles93/framestep/internal/toy"
	"github.com/samcharles93/framestep/pkg/frame"
	"github.com/samcharles93/framestep/pkg/policy"
)

// Session is one frame and its driver. Calls are serialised per session.
type Session interface {
	ID() string
	Step(ctx context.Context) (frame.StepResult, error)
	// Run steps until the frame is Finished or a backend error occurs. A done
	// ctx cancels a live frame. The session is unlocked between steps, so
	// Cancel and Snapshot take effect while a run is in progress.
	Run(ctx context.Context) (frame.StepResult, error)
	// Backoff waits until the rate policy would allow another step, or ctx is
	// done. It returns at once for sessions without a rate policy.
	Backoff(ctx context.Context)
	Cancel() Snapshot
	// Interrupt cancels the frame unless it is already terminal and reports
	// whether it did.
	Interrupt() bool
	Snapshot() Snapshot
}

// pacer reports how long until a yielding policy may allow again.
type pacer interface {
	Delay() time.Duration
}

type options struct {
	id      string
	log     logger.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

type Option func(*options)

func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock sets the time source for CreatedAt and the rate policy.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New validates spec and builds a session for its backend.
func New(spec Spec, opts ...Option) (Session, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	o := options{log: logger.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	switch spec.backend() {
	case BackendEcho:
		s := toy.NewEchoStepper()
		if spec.EOS != nil {
			s = s.WithEOS(*spec.EOS)
		}
		f := frame.WithPrompt(&toy.Memory{}, spec.MaxTokens, spec.Prompt)
		a, p := policies[*toy.Memory](spec, o.now)
		return newSession[*toy.Memory](BackendEcho, f, s, a, p, o), nil
	case BackendSample:
		s := toy.NewSampleStepper(spec.vocab())
		if spec.EOS != nil {
			s = s.WithEOS(*spec.EOS)
		}
		mem := toy.NewSampleMemory(toy.SamplerConfig{
			Seed:          spec.Seed,
			Temperature:   spec.Temperature,
			TopK:          spec.TopK,
			TopP:          spec.TopP,
			RepeatPenalty: spec.RepeatPenalty,
		})
		f := frame.WithPrompt(mem, spec.MaxTokens, spec.Prompt)
		a, p := policies[*toy.SampleMemory](spec, o.now)
		return newSession[*toy.SampleMemory](BackendSample, f, s, a, p, o), nil
	default:
		f := frame.New(frame.NoopMem{}, spec.MaxTokens)
		a, p := policies[frame.NoopMem](spec, o.now)
		return newSession[frame.NoopMem](BackendNoop, f, frame.NoopStepper{}, a, p, o), nil
	}
}

// Host wraps a caller-built frame and stepper in a session, for backends this
// package does not construct itself. A nil arbiter allows every step.
func Host[M any](backend string, f frame.Frame[M], s frame.Stepper[M], a frame.Arbiter[M], opts ...Option) Session {
	o := options{log: logger.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	var p pacer
	if pa, ok := a.(pacer); ok {
		p = pa
	}
	return newSession[M](backend, f, s, a, p, o)
}

// policies orders the arbiters so a refusal takes priority over a yield. The
// pacer is the rate policy, nil when there is none.
func policies[M any](spec Spec, now func() time.Time) (frame.Arbiter[M], pacer) {
	var (
		chain policy.Chain[M]
		pace  pacer
	)
	if spec.RefuseAfter > 0 {
		chain = append(chain, policy.NewBudget[M](spec.RefuseAfter))
	}
	if spec.YieldEvery > 0 {
		chain = append(chain, policy.NewEveryNth[M](spec.YieldEvery))
	}
	if spec.Rate > 0 {
		rl := policy.NewRateLimit[M](spec.Rate, spec.Burst).WithClock(now)
		chain = append(chain, rl)
		pace = rl
	}
	if len(chain) == 0 {
		return nil, pace
	}
	return chain, pace
}

type session[M any] struct {
	id      string
	backend string
	created time.Time
	log     logger.Logger
	metrics *metrics.Collector
	pace    pacer

	// stop is closed once the session is cancelled so Backoff wakes early.
	stop     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	driver *frame.Driver[M]
	steps  uint64
	yields uint64
}

func newSession[M any](backend string, f frame.Frame[M], s frame.Stepper[M], a frame.Arbiter[M], p pacer, o options) *session[M] {
	return &session[M]{
		id:      o.id,
		backend: backend,
		created: o.now(),
		log:     o.log.With("session", o.id, "backend", backend),
		metrics: o.metrics,
		pace:    p,
		stop:    make(chan struct{}),
		driver:  frame.NewDriverWithArbiter(f, s, a),
	}
}

func (s *session[M]) ID() string { return s.id }

func (s *session[M]) Step(ctx context.Context) (frame.StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step(ctx)
}

func (s *session[M]) Run(ctx context.Context) (frame.StepResult, error) {
	for {
		if ctx.Err() != nil {
			s.Interrupt()
		}
		res, err := s.Step(ctx)
		if err != nil || res.Finished() {
			return res, err
		}
		if res.Outcome == frame.Yielded {
			s.Backoff(ctx)
		}
	}
}

func (s *session[M]) Backoff(ctx context.Context) {
	if s.pace == nil {
		return
	}
	d := s.pace.Delay()
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-s.stop:
	case <-t.C:
	}
}

func (s *session[M]) step(ctx context.Context) (frame.StepResult, error) {
	res, err := s.driver.Step(ctx)
	s.steps++
	if err != nil {
		s.metrics.ObserveError(err)
		s.log.Warn("step failed", "position", s.driver.Frame().Cursor.Position, "error", err)
		return res, err
	}
	s.metrics.Observe(res)

	switch res.Outcome {
	case frame.Yielded:
		s.yields++
		s.log.Debug("step yielded", "position", s.driver.Frame().Cursor.Position)
	case frame.Done:
		reason, _ := res.Reason()
		s.log.Debug("step finished", "reason", reason.String(), "tokens", s.driver.Frame().TokensGenerated)
	default:
		if tok, ok := res.Token(); ok {
			s.log.Debug("step advanced", "token", tok)
		}
	}
	return res, nil
}

func (s *session[M]) Cancel() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driver.Frame().Cancel()
	s.stopOnce.Do(func() { close(s.stop) })
	s.log.Info("session cancelled", "state", s.driver.Frame().State.String())
	return s.snapshot()
}

func (s *session[M]) Interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver.Frame().State.Terminal() {
		return false
	}
	s.driver.Frame().Cancel()
	s.stopOnce.Do(func() { close(s.stop) })
	s.log.Info("session interrupted", "position", s.driver.Frame().Cursor.Position)
	return true
}

func (s *session[M]) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *session[M]) snapshot() Snapshot {
	return snapshotOf(s.id, s.backend, s.driver.Frame(), s.steps, s.yields, s.created)
}
