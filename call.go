package orchestra

import (
	"context"
	"fmt"
	"time"
)

// invoke runs fn with a deadline, converting panics into errors. It returns
// as soon as the deadline passes even if fn ignores its context; fn is then
// abandoned.
func invoke(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("%w: %v", ErrProbePanic, r)
			}
		}()
		result <- fn(ctx)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("manager call abandoned: %w", ctx.Err())
	}
}

// probeHealth folds an unhealthy result and a probe error into one error.
func probeHealth(ctx context.Context, timeout time.Duration, m Manager) error {
	return invoke(ctx, timeout, func(ctx context.Context) error {
		healthy, err := m.IsHealthy(ctx)
		if err != nil {
			return err
		}
		if !healthy {
			return ErrManagerUnhealthy
		}
		return nil
	})
}
