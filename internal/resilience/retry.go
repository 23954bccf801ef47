package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff controls how an upstream call is retried.
type Backoff struct {
	// Attempts is the total number of tries. 1 disables retries.
	Attempts int

	// Base is the delay before the first retry; Cap bounds every delay.
	Base time.Duration
	Cap  time.Duration

	// Factor multiplies the delay after each retry.
	Factor float64

	// Jitter randomizes each delay by up to ±Jitter of its value.
	Jitter float64

	// Retryable overrides IsRetryable.
	Retryable func(err error) bool

	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultBackoff is tuned for LLM chat endpoints.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Base:     time.Second,
		Cap:      20 * time.Second,
		Factor:   2,
		Jitter:   0.25,
	}
}

func (b Backoff) normalized() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	if b.Base <= 0 {
		b.Base = time.Second
	}
	if b.Cap <= 0 {
		b.Cap = 20 * time.Second
	}
	if b.Factor < 1 {
		b.Factor = 2
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	if b.Retryable == nil {
		b.Retryable = IsRetryable
	}
	return b
}

// delay returns the sleep before retry number n (zero-based).
func (b Backoff) delay(n int) time.Duration {
	d := math.Min(float64(b.Base)*math.Pow(b.Factor, float64(n)), float64(b.Cap))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, b Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.normalized()

	var zero T
	var err error
	for attempt := 1; ; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !b.Retryable(err) || attempt >= b.Attempts {
			return zero, err
		}

		if b.OnRetry != nil {
			b.OnRetry(attempt, err)
		}

		t := time.NewTimer(b.delay(attempt - 1))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}

// LogRetry returns an OnRetry hook that logs through zap.
func LogRetry(service string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("service", service),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
