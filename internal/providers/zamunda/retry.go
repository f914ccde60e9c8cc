package zamunda

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// retryPolicy controls the backoff used for .torrent downloads. Tracker
// searches and login are never retried.
type retryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func defaultRetryPolicy(attempts int) retryPolicy {
	return retryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// statusError is a non-200 answer to a torrent download.
type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("torrent HTTP %d", e.Code)
}

// withRetry runs fn until it succeeds, fails with a permanent error, or the
// attempts run out. Delays grow by Multiplier with ±25% jitter.
func withRetry(ctx context.Context, policy retryPolicy, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	delay := policy.InitialDelay
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !isTransient(lastErr) || attempt == policy.MaxAttempts-1 {
			break
		}

		wait := jitter(delay)
		if wait > policy.MaxDelay {
			wait = policy.MaxDelay
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return lastErr
}

func jitter(d time.Duration) time.Duration {
	factor := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * factor)
}

// isTransient reports errors worth another attempt: network failures,
// truncated bodies and 5xx or 429 answers. A broken torrent or a 404 is
// permanent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var status *statusError
	if errors.As(err, &status) {
		return status.Code >= http.StatusInternalServerError || status.Code == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
