package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) JobSubmitted()                                     {}
func (n *NoopSink) JobFinished(status string, duration time.Duration) {}
func (n *NoopSink) RecipientOutcome(outcome string)                   {}
func (n *NoopSink) SendLatency(kind string, d time.Duration)          {}
func (n *NoopSink) QueueDepth(size int)                               {}
func (n *NoopSink) SessionState(state string)                         {}
func (n *NoopSink) Observers(count int)                               {}
