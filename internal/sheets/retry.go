package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"

	"github.com/avandelay/sheetspend/internal/instrumentation"
	"github.com/avandelay/sheetspend/internal/logging"
)

const (
	// DefaultMaxRetries bounds how often a transient failure is retried
	// before the operation is reported as unavailable.
	DefaultMaxRetries = 3

	// DefaultInitialBackoff is the first retry delay; subsequent delays
	// double with jitter.
	DefaultInitialBackoff = 500 * time.Millisecond
)

// withRetry runs fn, retrying transient failures (rate limits and server
// errors) up to c.maxRetries times. A mid-flight token rejection gets one
// token re-acquisition and one immediate replay of the same call when an
// invalidator is configured; other rejections surface immediately.
func (c *Client) withRetry(ctx context.Context, operation string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.MaxInterval = 10 * time.Second
	bo.Reset()

	start := time.Now()
	var lastErr error
	attempt := 0
	tokenRetried := false

	for {
		err := fn()
		if err == nil {
			c.recordOperation(ctx, operation, instrumentation.ResultSuccess, time.Since(start))
			return nil
		}

		classified, transient := classify(err)
		if !transient {
			if errors.Is(classified, ErrTokenExpired) && c.invalidator != nil && !tokenRetried {
				tokenRetried = true
				c.invalidator.Invalidate()
				c.logger.Info("access token rejected mid-flight, refreshing and retrying the call once",
					logging.Operation(operation))
				continue
			}
			c.recordOperation(ctx, operation, instrumentation.ResultFailure, time.Since(start))
			return classified
		}
		lastErr = classified

		if attempt >= c.maxRetries {
			break
		}
		attempt++

		c.recordRetry(ctx, operation)
		c.logger.Debug("retrying after transient Sheets API error",
			logging.Operation(operation),
			slog.Int(logging.KeyAttempt, attempt),
			logging.Error(classified))

		if err := sleep(ctx, bo.NextBackOff()); err != nil {
			c.recordOperation(ctx, operation, instrumentation.ResultFailure, time.Since(start))
			return err
		}
	}

	c.recordOperation(ctx, operation, instrumentation.ResultFailure, time.Since(start))
	return fmt.Errorf("%s failed after %d retries: %w", operation, c.maxRetries, errors.Join(ErrUnavailable, lastErr))
}

// classify maps a Sheets API error to the client's error taxonomy and
// reports whether it may be retried.
func classify(err error) (error, bool) {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrTokenExpired, apiErr.Message), false
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return remoteError(apiErr), true
		default:
			return remoteError(apiErr), false
		}
	}
	// Context errors abort, everything else (transport failures) is final:
	// only remote rate limits and server errors are worth retrying.
	return err, false
}

func remoteError(apiErr *googleapi.Error) *RemoteError {
	re := &RemoteError{
		StatusCode: apiErr.Code,
		Message:    apiErr.Message,
	}
	if len(apiErr.Errors) > 0 {
		re.Reason = apiErr.Errors[0].Reason
	}
	return re
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) recordOperation(ctx context.Context, operation, result string, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordSheetsOperation(ctx, operation, result, duration)
}

func (c *Client) recordRetry(ctx context.Context, operation string) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordSheetsRetry(ctx, operation)
}
