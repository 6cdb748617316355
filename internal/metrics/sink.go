// Package metrics records dispatch, session and observer metrics.
package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations must not block or
// propagate errors.
type Sink interface {
	// Dispatch metrics
	JobSubmitted()
	JobFinished(status string, duration time.Duration)
	RecipientOutcome(outcome string)
	SendLatency(kind string, d time.Duration)
	QueueDepth(n int)

	// Session metrics
	SessionState(state string)

	// Broadcaster metrics
	Observers(n int)
}

// Send kinds for SendLatency.
const (
	KindText  = "text"
	KindMedia = "media"
)
