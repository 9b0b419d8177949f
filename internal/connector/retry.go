package connector

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRateLimitRetries bounds how often a rate-limited call is retried.
const DefaultRateLimitRetries = 5

// RateLimited reports whether err is a rate-limit response and how long the
// service asked us to wait.
type RateLimited func(err error) (time.Duration, bool)

// CallWithRetry runs call, waiting and retrying while it is rate limited, up
// to maxRetries extra attempts. Other errors return immediately.
func CallWithRetry[T any](ctx context.Context, maxRetries int, limited RateLimited, call func() (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		result, err := call()
		if err == nil {
			return result, nil
		}

		wait, ok := limited(err)
		if !ok || attempt >= maxRetries {
			return result, err
		}

		slog.DebugContext(ctx, "rate limited, waiting before retry",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"wait_ms", wait.Milliseconds())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
