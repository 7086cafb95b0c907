package llm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy controls retry pacing: exponential delays from Min doubling
// per attempt, capped at Max, with ±20% jitter so concurrent workers do not
// retry in lockstep.
type BackoffPolicy struct {
	Min        time.Duration
	Max        time.Duration
	MaxRetries int
}

// DefaultBackoff matches the provider's published retry guidance closely
// enough for batch workloads.
var DefaultBackoff = BackoffPolicy{
	Min:        time.Second,
	Max:        30 * time.Second,
	MaxRetries: 3,
}

// Delay computes the backoff before retry attempt n (1-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.Min) * math.Pow(2, float64(attempt-1))
	if d > float64(p.Max) {
		d = float64(p.Max)
	}

	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(d * jitter)
}

// CompleteWithRetry runs the request, retrying when retryable(err) is true,
// up to the policy's MaxRetries additional attempts. Context cancellation
// cuts the wait short.
func CompleteWithRetry(
	ctx context.Context,
	client Client,
	req CompletionRequest,
	policy BackoffPolicy,
	retryable func(error) bool,
) (*CompletionResult, error) {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(policy.Delay(attempt)):
			}
		}

		result, err := client.Complete(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}
