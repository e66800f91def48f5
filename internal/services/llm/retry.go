package llm

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

// RetryPolicy is exponential backoff with optional full jitter, applied to
// transient errors only.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	Jitter      bool

	// Sleep waits for d or until ctx is done; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is 3 attempts, 1s base, factor 2, jittered, 30s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Factor:      2,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// RetryPolicyFromConfig builds the policy from the generation config section.
func RetryPolicyFromConfig(cfg *common.GenerationConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BackoffFactor >= 1 {
		p.Factor = cfg.BackoffFactor
	}
	p.BaseDelay = common.ParseDurationOr(cfg.BaseBackoff, p.BaseDelay)
	p.MaxDelay = common.ParseDurationOr(cfg.MaxBackoff, p.MaxDelay)
	p.Jitter = cfg.Jitter
	return p
}

// Backoff returns the wait before the retry that follows attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter && d > 0 {
		d = rand.Float64() * d
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, fails with a non-transient error or the
// attempts are exhausted. It returns the number of attempts made. Exhausted
// retries are reported as ExternalServiceError wrapping the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if !IsTransient(lastErr) {
			return attempt, classify(lastErr, "non-retryable provider error")
		}
		if attempt == maxAttempts {
			break
		}

		wait := p.Backoff(attempt)
		if hint := ExtractRetryDelay(lastErr); hint > wait && (p.MaxDelay <= 0 || hint <= p.MaxDelay) {
			wait = hint
		}
		if err := sleep(ctx, wait); err != nil {
			return attempt, err
		}
	}

	return maxAttempts, interfaces.NewExternalServiceError(lastErr, "gave up after %d attempts", maxAttempts)
}

// classify keeps typed errors and wraps everything else as ExternalServiceError.
func classify(err error, reason string) error {
	if interfaces.KindOf(err) != "" {
		return err
	}
	return interfaces.NewExternalServiceError(err, "%s", reason)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
