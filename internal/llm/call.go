package llm

import (
	"context"
	"errors"
	"time"

	"coach-backend/internal/shared/apperr"
	"coach-backend/internal/shared/metrics"
)

// Call runs fn under its own deadline, records the call in metrics, and wraps
// any failure in *apperr.ProviderError. A zero timeout keeps the caller's deadline.
func Call[T any](ctx context.Context, provider, op string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := fn(ctx)
	metrics.ObserveProviderCall(op, time.Since(start), err)
	if err != nil {
		var zero T
		return zero, &apperr.ProviderError{
			Provider:  provider,
			Operation: op,
			Timeout:   errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded),
			Err:       err,
		}
	}
	return out, nil
}
