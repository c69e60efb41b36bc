package storage

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// retryBase is the first backoff interval; later ones double.
var retryBase = 100 * time.Millisecond

// withRetry runs op up to maxRetries+1 times. Only ErrUnavailable is retried.
// A positive timeout bounds every attempt separately.
func withRetry(ctx context.Context, maxRetries int, timeout time.Duration, op func(ctx context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	b := retry.WithMaxRetries(uint64(maxRetries), retry.NewExponential(retryBase))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		attemptCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		err := op(attemptCtx)
		if err != nil && Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
