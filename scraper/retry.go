package scraper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy configures how a platform scrape is retried
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first
	Delay       time.Duration // delay before the second attempt
	Backoff     float64       // delay multiplier for later attempts, 1 when unset
}

// DefaultRetryPolicy returns two attempts two seconds apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Delay:       2 * time.Second,
		Backoff:     1,
	}
}

// Do runs fn until it succeeds, the attempts are used up or ctx is done.
// The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, log *zap.Logger, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff
	if backoff < 1 {
		backoff = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	delay := p.Delay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(attempt)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == attempts {
			break
		}

		log.Warn("attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		delay = time.Duration(float64(delay) * backoff)
	}
	return err
}
