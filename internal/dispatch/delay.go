package dispatch

import (
	"context"
	"time"
)

// ClampDelay returns the effective inter-send wait: the requested delay or
// def when unset, raised to min, and lowered to max when max is set.
func ClampDelay(requested, def, min, max time.Duration) time.Duration {
	d := requested
	if d <= 0 {
		d = def
	}
	if d < min {
		d = min
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !t.Stop() {
			<-t.C
		}
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
