package providers

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests to one describer backend. It is shared by every
// concurrent enrichment job using that backend. A nil *RateLimiter never blocks.
type RateLimiter struct {
	limiter *rate.Limiter
	rps     float64

	mu           sync.Mutex
	calls        int64
	waited       time.Duration
	last429      time.Time
	backoffUntil time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	RPS          float64       `json:"rps"`
	Burst        int           `json:"burst"`
	Tokens       float64       `json:"tokens"`
	Calls        int64         `json:"calls"`
	Waited       time.Duration `json:"waited"`
	Last429      time.Time     `json:"last_429,omitempty"`
	BackoffUntil time.Time     `json:"backoff_until,omitempty"`
}

// NewRateLimiterRPS creates a limiter allowing rps requests per second with a
// burst of one second's worth of requests.
// A non-positive rate returns nil, which disables limiting.
func NewRateLimiterRPS(rps float64) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	burst := int(math.Ceil(rps))
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rps,
	}
}

// Wait blocks until the backend may be called again or ctx is done.
// A Retry-After recorded by Record429 is honored before the rate itself.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	start := time.Now()

	r.mu.Lock()
	pause := time.Until(r.backoffUntil)
	r.mu.Unlock()
	if pause > 0 {
		t := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	r.mu.Lock()
	r.calls++
	r.waited += time.Since(start)
	r.mu.Unlock()
	return nil
}

// Record429 notes a rate-limit response. A positive retryAfter pauses all
// callers until it has elapsed.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.last429 = now
	if until := now.Add(retryAfter); retryAfter > 0 && until.After(r.backoffUntil) {
		r.backoffUntil = until
	}
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	if r == nil {
		return RateLimiterStatus{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s := RateLimiterStatus{
		RPS:     r.rps,
		Burst:   r.limiter.Burst(),
		Tokens:  r.limiter.Tokens(),
		Calls:   r.calls,
		Waited:  r.waited,
		Last429: r.last429,
	}
	if r.backoffUntil.After(time.Now()) {
		s.BackoffUntil = r.backoffUntil
	}
	return s
}
