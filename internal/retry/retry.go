// Package retry runs fallible daemon operations with a fixed-backoff budget.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Do invokes op up to attempts times, sleeping delay between failed attempts.
// Backoff is fixed: the daemon's transient failures are short-lived and the
// attempt count is small, so there is nothing to gain from exponential growth.
// The last error is returned once the budget is exhausted. Cancellation of ctx
// during a backoff sleep aborts immediately with the context error.
func Do(ctx context.Context, logger *logrus.Logger, label string, attempts int, delay time.Duration, op func(context.Context) error) error {
	if attempts < 1 {
		return fmt.Errorf("retry %s: attempts must be >= 1, got %d", label, attempts)
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}

		logger.WithError(err).WithFields(logrus.Fields{
			"operation": label,
			"attempt":   attempt,
			"max":       attempts,
		}).Warn("operation failed")

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", label, attempts, err)
}
