package p100

import (
	"context"
	"fmt"
	"time"
)

// ReconnectPolicy bounds a reconnect loop. The wait before attempt n+1 is
// Backoff × n.
type ReconnectPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultReconnectPolicy makes three attempts, waiting 10s then 20s.
var DefaultReconnectPolicy = ReconnectPolicy{
	Attempts: 3,
	Backoff:  10 * time.Second,
}

// Reconnect drops the current connection, if any, and connects again with
// linearly increasing backoff. It gives up after policy.Attempts failures or
// when ctx is done.
func (d *Device) Reconnect(ctx context.Context, policy ReconnectPolicy) error {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if d.conn.IsConnected() {
		d.conn.Disconnect()
	}

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		lastErr = d.Connect(ctx)
		if lastErr == nil {
			d.logger.Info("reconnected", "attempt", attempt)
			return nil
		}
		d.logger.Warn("reconnect attempt failed", "attempt", attempt, "of", policy.Attempts, "error", lastErr)
		if attempt == policy.Attempts {
			break
		}

		wait := policy.Backoff * time.Duration(attempt)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return fmt.Errorf("reconnect failed after %d attempts: %w", policy.Attempts, lastErr)
}
