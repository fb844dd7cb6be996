package bridge

import (
	"context"
	"time"
)

// Backoff computes reconnect delays.
type Backoff struct {
	// Base is the delay before the first reconnect (default 2s).
	Base time.Duration
	// Max caps any single delay (default 30s).
	Max time.Duration
	// MaxAttempts is the number of reconnects after which the bridge gives
	// up until Retry is called (default 5).
	MaxAttempts int
}

// DefaultBackoff returns the 2s/30s/5 policy.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        2 * time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns min(Base * 2^attempt, Max) for a zero-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		if d >= b.Max {
			break
		}
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
