package rag

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

const maxBackoff = 5 * time.Second

// RetryPolicy bounds local retries. MaxAttempts counts the first try.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Backoff
	if base <= 0 {
		base = time.Millisecond
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxBackoff, b)
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. fn marks transient failures with retry.RetryableError.
func (p RetryPolicy) do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		return fn(ctx, attempt)
	})
}
