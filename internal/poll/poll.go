// Package poll provides the bounded poll loop used by every wait in a run.
package poll

import (
	"context"
	"time"
)

// Until calls fn immediately and then every interval until fn returns true,
// bound has elapsed, or ctx is done. It reports whether fn succeeded.
// A zero bound means a single attempt.
func Until(ctx context.Context, interval, bound time.Duration, fn func() bool) bool {
	if fn() {
		return true
	}
	if bound <= 0 {
		return false
	}
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.NewTimer(bound)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return fn()
		case <-ticker.C:
			if fn() {
				return true
			}
		}
	}
}
