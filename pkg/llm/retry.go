package llm

import (
	"context"
	"time"

	"github.com/zen-systems/nodeflow/pkg/adapter"
	"github.com/zen-systems/nodeflow/pkg/config"
)

// callWithRetry calls impl, retrying transient errors up to cfg.MaxRetries
// times. It returns the number of retries spent.
func callWithRetry(ctx context.Context, impl adapter.Adapter, req adapter.Request, cfg config.RetryConfig) (*adapter.Response, int, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := impl.Generate(ctx, req)
		if err == nil {
			return resp, attempt, nil
		}

		lastErr = err
		if !adapter.IsTransient(err) || attempt == cfg.MaxRetries {
			return nil, attempt, err
		}

		backoff := computeBackoff(cfg.BaseBackoffMs, cfg.MaxBackoffMs, attempt)
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, attempt, err
		}
	}
	return nil, cfg.MaxRetries, lastErr
}

func computeBackoff(baseMs, maxMs, attempt int) time.Duration {
	limit := time.Duration(maxMs) * time.Millisecond
	backoff := time.Duration(baseMs) * time.Millisecond
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	return min(backoff, limit)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
