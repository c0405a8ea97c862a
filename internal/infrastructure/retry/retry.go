package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Policy bounds retries of one outbound call. MaxRetries counts attempts after the first.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// StatusError is implemented by API errors that carry an HTTP status.
type StatusError interface {
	error
	HTTPStatus() int
}

// Do runs fn until it succeeds, returns a non-retryable error, retries are
// exhausted or ctx is done. Backoff doubles up to MaxBackoff.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	delay := p.InitialBackoff
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !Retryable(err) {
			return err
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}

		if delay < p.MaxBackoff {
			delay *= 2
			if delay > p.MaxBackoff {
				delay = p.MaxBackoff
			}
		}
	}
}

// Retryable treats network failures, 429 and 5xx responses as transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatus()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
