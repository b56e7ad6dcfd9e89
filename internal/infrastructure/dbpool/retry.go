package dbpool

import (
	"context"
	"math/rand/v2"
	"time"

	log "github.com/sirupsen/logrus"

	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/infrastructure/config"
)

// RetryPolicy configures retry of transient failures with exponential backoff.
type RetryPolicy struct {
	// MaxAttempts counts the initial attempt.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter is the maximum random deviation as a fraction of the backoff.
	Jitter float64
}

// PolicyFrom converts the retry config section.
func PolicyFrom(cfg config.RetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Multiplier:     cfg.Multiplier,
		Jitter:         cfg.Jitter,
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

// Operation names a call for logs and metrics and states whether repeating
// it after it reached the store is safe.
type Operation struct {
	Name       string
	Idempotent bool
}

// ExecuteWithRetry runs fn, retrying DatabaseErrors flagged retryable.
//
// Idempotent operations are retried on any retryable failure. Other
// operations are retried only when the failure happened while acquiring the
// session, before any statement reached the store. Calls made inside an
// ambient transaction are never retried here; the failure belongs to the
// transaction owner. The last error is returned unchanged.
func ExecuteWithRetry[T any](ctx context.Context, policy RetryPolicy, op Operation, fn func(ctx context.Context) (T, error)) (T, error) {
	if inTransaction(ctx) {
		return fn(ctx)
	}

	var zero T
	backoff := policy.InitialBackoff
	attempts := max(policy.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= attempts || !shouldRetry(op, err) {
			return zero, err
		}

		wait := jittered(backoff, policy.Jitter)
		log.WithFields(log.Fields{
			"op":      op.Name,
			"attempt": attempt,
			"backoff": wait,
		}).WithError(err).Warn("retrying database operation")
		operationRetries.WithLabelValues(op.Name).Inc()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}

		backoff = nextBackoff(backoff, policy.Multiplier, policy.MaxBackoff)
	}
}

func shouldRetry(op Operation, err error) bool {
	if !domainErr.IsRetryable(err) {
		return false
	}
	if op.Idempotent {
		return true
	}
	stage, _ := domainErr.StageOf(err)
	return stage == domainErr.StageAcquire
}

// jittered spreads base over [base*(1-j), base*(1+j)].
func jittered(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	factor := 1 + (rand.Float64()*2-1)*jitter
	return time.Duration(float64(base) * factor)
}

func nextBackoff(current time.Duration, factor float64, ceiling time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if ceiling > 0 && next > ceiling {
		return ceiling
	}
	return next
}
