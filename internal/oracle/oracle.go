// Package oracle computes fee amounts by asking an LLM to apply free-text
// rate rules to free-text workloads.
package oracle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/feerecon/internal/model"
	"github.com/sells-group/feerecon/internal/resilience"
)

// Completer sends one system+user exchange to a chat model and returns the
// reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config tunes an LLM oracle.
type Config struct {
	// RequestsPerSecond bounds calls to the provider. Zero disables the limit.
	RequestsPerSecond float64

	// Timeout bounds a single attempt.
	Timeout time.Duration

	Backoff resilience.Backoff

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// LLM is an amount oracle backed by a chat model. It is safe for concurrent
// use; concurrent batches share the rate limiter and breaker.
type LLM struct {
	name      string
	completer Completer
	limiter   *rate.Limiter
	breaker   *resilience.Breaker
	backoff   resilience.Backoff
	timeout   time.Duration
}

// NewLLM wraps a completer with rate limiting, retries and a circuit breaker.
func NewLLM(name string, c Completer, cfg Config) *LLM {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	b := cfg.Backoff
	if b.OnRetry == nil {
		b.OnRetry = resilience.LogRetry(name)
	}
	return &LLM{
		name:      name,
		completer: c,
		limiter:   rate.NewLimiter(limit, 1),
		breaker:   resilience.NewBreaker(name, cfg.BreakerThreshold, cfg.BreakerCooldown),
		backoff:   b,
		timeout:   cfg.Timeout,
	}
}

// Compute returns one amount per request, in order. Transport failures and
// undecodable replies are returned as errors so the caller can fail the
// whole batch.
func (o *LLM) Compute(ctx context.Context, reqs []model.CalcRequest) ([]model.Amount, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	user, err := BuildUserMessage(reqs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	reply, err := resilience.Call(ctx, o.breaker, func(ctx context.Context) (string, error) {
		return resilience.Retry(ctx, o.backoff, func(ctx context.Context) (string, error) {
			if err := o.limiter.Wait(ctx); err != nil {
				return "", eris.Wrap(err, "oracle: rate limit wait")
			}
			actx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()
			return o.completer.Complete(actx, SystemPrompt, user)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "oracle: %s complete", o.name)
	}

	amounts, err := DecodeAmounts(reply, len(reqs))
	if err != nil {
		zap.L().Warn("oracle: undecodable reply",
			zap.String("provider", o.name),
			zap.Int("requests", len(reqs)),
			zap.String("reply", truncate(reply)),
			zap.Error(err),
		)
		return nil, err
	}

	zap.L().Debug("oracle: batch computed",
		zap.String("provider", o.name),
		zap.Int("requests", len(reqs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return amounts, nil
}
