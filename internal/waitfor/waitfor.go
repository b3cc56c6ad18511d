package waitfor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned (wrapped) when the condition does not hold before
// the deadline. Callers distinguish it with errors.Is.
var ErrTimeout = errors.New("condition not met before deadline")

// DefaultInterval is used when the caller passes a non-positive interval.
const DefaultInterval = 500 * time.Millisecond

// Until polls cond every interval until it returns true, the timeout
// elapses, or ctx is canceled. cond errors abort the wait immediately.
// The condition is checked once before any sleep, so a condition that is
// already true returns without waiting.
func Until(ctx context.Context, timeout, interval time.Duration, cond func() (bool, error)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w (waited %s)", ErrTimeout, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
