// Package backoff provides the delay policy applied by clients between
// rejected buffer attempts. The policy is a pure mapping from attempt number
// and configuration to a wait duration, independent of any transport.
package backoff

import (
	"context"
	"time"

	"github.com/cyberinferno/bufferd/utils"
)

// Policy describes the wait applied before a retry. Delays are drawn
// uniformly from [Min, Max]; the bounds are configuration, not contract.
type Policy struct {
	Min time.Duration
	Max time.Duration
}

// DefaultPolicy returns the policy the clients ship with: a pause between
// one and three seconds before each retry.
//
// Returns:
//   - A Policy with Min of 1s and Max of 3s
func DefaultPolicy() Policy {
	return Policy{Min: time.Second, Max: 3 * time.Second}
}

// Delay returns the pause to apply before retry attempt n (1-based). The
// uniform policy draws from the same [Min, Max] range for every attempt.
// A degenerate range (Max <= Min) always yields Min.
//
// Parameters:
//   - attempt: The 1-based retry attempt number
//
// Returns:
//   - The duration to wait before that attempt
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	return utils.RandomDurationBetween(p.Min, p.Max)
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
//
// Parameters:
//   - ctx: Context whose cancellation aborts the wait
//   - d: How long to wait; non-positive durations return immediately
//
// Returns:
//   - nil if the full duration elapsed, or the context error on cancellation
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
