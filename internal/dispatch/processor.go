package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/bulksend/internal/domain"
	"github.com/cuongbtq/bulksend/internal/metrics"
	"github.com/cuongbtq/bulksend/internal/progress"
)

var errPanic = errors.New("dispatch worker panicked")

// processJob sends to every recipient of a job in order.
func (d *Dispatcher) processJob(ctx context.Context, e *entry) {
	d.mu.Lock()
	if e.canceled {
		d.mu.Unlock()
		d.logger.Debug("Skipping canceled job", slog.String("job_id", e.job.ID))
		return
	}
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cancel = cancel
	job := e.job
	job.Status = domain.JobStatusRunning
	job.StartedAt = d.now()
	d.mu.Unlock()

	if !d.sender.Ready() {
		d.logger.Warn("Session not ready at job start", slog.String("job_id", job.ID))
		d.finish(e, domain.JobStatusFailed, domain.ErrSessionNotReady)
		return
	}

	d.persist(e)
	d.logger.Info("Processing job",
		slog.String("job_id", job.ID),
		slog.Int("total", job.Total()),
		slog.Duration("delay", job.Delay),
	)

	total := job.Total()
	for i, number := range job.Recipients {
		if jobCtx.Err() != nil {
			break
		}

		outcome, err := d.deliver(ctx, jobCtx, job, number)
		if outcome == "" {
			// Interrupted while waiting for the rate limiter.
			break
		}

		d.mu.Lock()
		job.Counters.Add(outcome)
		counters := job.Counters
		d.mu.Unlock()
		d.metrics.RecipientOutcome(string(outcome))

		status := progress.Status{
			JobID:     job.ID,
			Index:     i + 1,
			Total:     total,
			Recipient: number,
			Outcome:   outcome,
			Counters:  counters,
		}
		switch outcome {
		case domain.OutcomeSkipped:
			status.Text = skippedText(number)
		case domain.OutcomeSent:
			status.Text = sentText(i+1, total, number)
		case domain.OutcomeFailed:
			status.Text = failedText(i+1, total, number, err)
			status.Error = err.Error()
			d.logger.Warn("Send failed",
				slog.String("job_id", job.ID),
				slog.String("recipient", number),
				slog.Any("error", err),
			)
		}
		d.publish(status)
		d.persist(e)

		if i < total-1 {
			if err := d.sleep(jobCtx, job.Delay); err != nil {
				break
			}
		}
	}

	d.mu.RLock()
	done := job.Counters.Done()
	d.mu.RUnlock()

	switch {
	case ctx.Err() != nil:
		d.finish(e, domain.JobStatusFailed, domain.ErrDispatcherStopped)
	case jobCtx.Err() != nil && done < total:
		d.finish(e, domain.JobStatusCanceled, nil)
	default:
		d.finish(e, domain.JobStatusCompleted, nil)
	}
}

// deliver handles one recipient. An empty outcome means the job was
// interrupted before anything was sent.
func (d *Dispatcher) deliver(runCtx, jobCtx context.Context, job *domain.Job, number string) (domain.Outcome, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(jobCtx); err != nil {
			return "", err
		}
	}

	// Sends are bounded by the run context, not the job context, so a
	// cancel takes effect between recipients rather than mid-send.
	ctx, cancel := context.WithTimeout(runCtx, d.cfg.SendTimeout)
	defer cancel()

	registered, err := d.sender.IsRegistered(ctx, number)
	if err != nil {
		return domain.OutcomeFailed, d.sendError(ctx, err)
	}
	if !registered {
		return domain.OutcomeSkipped, nil
	}

	start := d.now()
	kind := metrics.KindText
	if job.Media != nil {
		kind = metrics.KindMedia
		err = d.sender.SendMedia(ctx, number, job.Media, job.Message)
	} else {
		err = d.sender.SendText(ctx, number, job.Message)
	}
	d.metrics.SendLatency(kind, d.now().Sub(start))

	if err != nil {
		return domain.OutcomeFailed, d.sendError(ctx, err)
	}
	return domain.OutcomeSent, nil
}

func (d *Dispatcher) sendError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s", d.cfg.SendTimeout)
	}
	return err
}

// finish moves a job to a terminal status and publishes its summary.
func (d *Dispatcher) finish(e *entry, status string, cause error) {
	now := d.now()

	d.mu.Lock()
	job := e.job
	job.Status = status
	job.FinishedAt = now
	if cause != nil {
		job.Error = cause.Error()
	}
	// The blob is only needed while sending.
	job.Media = job.Media.Metadata()
	e.cancel = nil
	counters := job.Counters
	started := job.StartedAt
	d.mu.Unlock()

	d.persist(e)

	var took time.Duration
	if !started.IsZero() {
		took = now.Sub(started)
	}
	d.metrics.JobFinished(status, took)

	summary := progress.Status{
		JobID:    job.ID,
		Total:    job.Total(),
		Counters: counters,
		Final:    true,
	}
	switch status {
	case domain.JobStatusCompleted:
		summary.Text = summaryText(counters)
	case domain.JobStatusCanceled:
		summary.Text = canceledText(counters, job.Total())
	default:
		summary.Text = failedJobText(cause)
		summary.Error = job.Error
	}
	d.publish(summary)

	fields := []any{
		slog.String("job_id", job.ID),
		slog.String("status", status),
		slog.Int("total", job.Total()),
		slog.Int("sent", counters.Sent),
		slog.Int("skipped", counters.Skipped),
		slog.Int("failed", counters.Failed),
		slog.Duration("took", took),
	}
	if status == domain.JobStatusFailed || counters.Failed > 0 {
		d.logger.Warn("Job finished with failures", fields...)
	} else {
		d.logger.Info("Job finished", fields...)
	}
}
