package utils

import (
	"context"
	"fmt"
	"time"

	"riskwatch/src/logger"
)

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// Retry executes fn up to maxAttempts times with exponential backoff. Used for
// boot-time dependencies like the database, which may not be up yet when the
// process starts. Context cancellation aborts between attempts.
func Retry(ctx context.Context, l *logger.Logger, operation string, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == maxAttempts {
			break
		}

		delay := baseDelay * (1 << (attempt - 1))
		l.Warning("%s failed (attempt %d/%d): %v. Retrying in %v", operation, attempt, maxAttempts, lastErr, delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s aborted: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, maxAttempts, lastErr)
}
