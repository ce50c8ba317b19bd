package policy

import (
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/samcharles93/framestep/pkg/frame"
)

// RateLimit yields whenever its token bucket is empty. Each allowed step
// consumes one token. A non-positive rate disables it.
type RateLimit[M any] struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// NewRateLimit allows perSecond steps per second with the given burst. Burst
// values below one are raised to one.
func NewRateLimit[M any](perSecond float64, burst int) *RateLimit[M] {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimit[M]{
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Tests use it to keep decisions
// deterministic.
func (r *RateLimit[M]) WithClock(now func() time.Time) *RateLimit[M] {
	r.now = now
	return r
}

func (r *RateLimit[M]) Decide(frame.View[M]) frame.Decision {
	if r.limiter.AllowN(r.now(), 1) {
		return frame.Allow
	}
	return frame.Yield
}

// Delay reports how long until the bucket holds a token again. Schedulers
// wait this long after a yield instead of polling Decide.
func (r *RateLimit[M]) Delay() time.Duration {
	limit := r.limiter.Limit()
	if limit == rate.Inf {
		return 0
	}
	tokens := r.limiter.TokensAt(r.now())
	if tokens >= 1 || limit <= 0 {
		return 0
	}
	return time.Duration(math.Round((1 - tokens) / float64(limit) * float64(time.Second)))
}
