package enaclient

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carbocation/herring"
)

// RetryPolicy bounds how hard Execute tries. Attempt k (1-based) that fails
// transiently is followed by a wait of BaseDelay * 2^(k-1), capped at
// MaxDelay, unless the server sent a Retry-After. Config.Validate requires a
// positive MaxDelay; a zero MaxDelay here leaves the backoff uncapped.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// ExtraStatus lists gateway codes outside 5xx and 429 that should also be
	// retried.
	ExtraStatus []int
}

// DefaultRetryPolicy matches what the portal tolerates in practice.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   400 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		ExtraStatus: []int{http.StatusRequestTimeout},
	}
}

// Transient reports whether an HTTP status is worth retrying.
func (p RetryPolicy) Transient(status int) bool {
	if status == http.StatusTooManyRequests || (status >= 500 && status <= 599) {
		return true
	}
	for _, s := range p.ExtraStatus {
		if s == status {
			return true
		}
	}

	return false
}

// Delay is the backoff after the given failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	return d
}

// Next decides what to do after attempt failed with err: whether to try again
// and how long to wait first. It has no side effects.
func (p RetryPolicy) Next(attempt int, err error) (bool, time.Duration) {
	if err == nil || !errors.Is(err, herring.ErrTransient) || attempt >= p.MaxAttempts {
		return false, 0
	}

	wait := p.Delay(attempt)

	var serr *StatusError
	if errors.As(err, &serr) && serr.RetryAfter > 0 {
		wait = serr.RetryAfter
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
	}

	return true, wait
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real-time Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// parseRetryAfter understands both delta-seconds and HTTP-date values.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}

	return 0
}
