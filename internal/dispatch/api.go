package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/bulksend/internal/domain"
	"github.com/cuongbtq/bulksend/internal/storage"
)

// Request is a bulk send as accepted from a caller. Recipients must already
// be normalized.
type Request struct {
	Recipients []string
	Message    string
	Media      *domain.Media
	// Delay is the requested wait between recipients; zero means default.
	Delay time.Duration
}

// Submit validates and enqueues a job and returns its initial snapshot.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (*domain.Job, error) {
	if len(req.Recipients) == 0 {
		return nil, domain.ErrNoValidNumbers
	}
	if strings.TrimSpace(req.Message) == "" && req.Media == nil {
		return nil, domain.ErrEmptyMessage
	}
	if !d.running.Load() {
		return nil, domain.ErrDispatcherStopped
	}
	if d.cfg.RequireReady && !d.sender.Ready() {
		return nil, domain.ErrSessionNotReady
	}

	now := d.now()
	d.pruneStatus(now)

	job := &domain.Job{
		ID:         uuid.NewString(),
		Status:     domain.JobStatusPending,
		Recipients: append([]string(nil), req.Recipients...),
		Message:    withFooter(req.Message, d.cfg.Footer),
		Media:      req.Media,
		Delay:      ClampDelay(req.Delay, d.cfg.DefaultDelay, d.cfg.MinDelay, d.cfg.MaxDelay),
		CreatedAt:  now,
	}
	e := &entry{job: job}
	snap := job.Summary()

	// running is rechecked under mu: Start flips it under the same lock
	// before draining, so nothing lands in the queue after the drain.
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return nil, domain.ErrDispatcherStopped
	}
	select {
	case d.queue <- e:
		d.jobs[job.ID] = e
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		d.logger.Warn("Dispatch queue full, rejecting job",
			slog.Int("total", job.Total()),
			slog.Int("queue_cap", cap(d.queue)),
		)
		return nil, domain.ErrQueueFull
	}

	d.persist(e)
	d.metrics.JobSubmitted()
	d.metrics.QueueDepth(len(d.queue))

	d.logger.Info("Job enqueued",
		slog.String("job_id", job.ID),
		slog.Int("total", job.Total()),
		slog.Duration("delay", job.Delay),
		slog.String("media", job.MediaName()),
		slog.Int("queue_len", len(d.queue)),
	)

	return snap, nil
}

// Get returns the latest snapshot of a job, live or from history.
func (d *Dispatcher) Get(ctx context.Context, id string) (*domain.Job, error) {
	d.mu.RLock()
	e, ok := d.jobs[id]
	if ok {
		snap := e.job.Summary()
		d.mu.RUnlock()
		return snap, nil
	}
	d.mu.RUnlock()

	return d.store.Get(ctx, id)
}

// List returns job history, newest first.
func (d *Dispatcher) List(ctx context.Context, filter storage.JobFilter) ([]*domain.Job, error) {
	return d.store.List(ctx, filter)
}

// Cancel stops a job. A queued job never starts; a running job stops before
// its next recipient.
func (d *Dispatcher) Cancel(ctx context.Context, id string) (*domain.Job, error) {
	d.mu.Lock()
	e, ok := d.jobs[id]
	if !ok {
		d.mu.Unlock()
		job, err := d.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if domain.IsTerminalStatus(job.Status) {
			return nil, domain.ErrJobFinished
		}
		// Present in history but not live: left over from a previous run.
		return nil, domain.ErrJobNotFound
	}

	if domain.IsTerminalStatus(e.job.Status) || e.canceled {
		d.mu.Unlock()
		return nil, domain.ErrJobFinished
	}

	e.canceled = true
	wasPending := e.job.Status == domain.JobStatusPending
	cancel := e.cancel
	d.mu.Unlock()

	d.logger.Info("Job cancel requested",
		slog.String("job_id", id),
		slog.Bool("queued", wasPending),
	)

	if wasPending {
		d.finish(e, domain.JobStatusCanceled, nil)
	} else if cancel != nil {
		cancel()
	}

	d.mu.RLock()
	snap := e.job.Summary()
	d.mu.RUnlock()
	return snap, nil
}

func withFooter(message, footer string) string {
	footer = strings.TrimSpace(footer)
	if footer == "" {
		return message
	}
	if strings.TrimSpace(message) == "" {
		return footer
	}
	return message + "\n\n" + footer
}
