package retry

import (
	"context"
	"time"
)

// Policy is a reusable exponential backoff policy shared by the submission
// fetcher and the relevance classifier. An attempt count of n means the
// operation runs at most n times; the delay before attempt k is
// BaseDelay * 2^(k-1), capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default mirrors the settings used when configuration omits the section.
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// Delay returns the backoff delay preceding the given retry (1-based).
func (p Policy) Delay(retry int) time.Duration {
	p = p.normalized()
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The last error is returned on exhaustion.
// Cancellation of ctx interrupts both the operation gap and the loop.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, op func() error) error {
	p = p.normalized()

	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = op()
		if last == nil {
			return nil
		}
		if retryable != nil && !retryable(last) {
			return last
		}
		if attempt == p.MaxAttempts {
			break
		}
		if err := Sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}
	return last
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
