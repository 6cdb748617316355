package storage

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/cuongbtq/bulksend/internal/domain"
)

// jobRow is the bulk_jobs row layout.
type jobRow struct {
	JobID      string         `db:"job_id"`
	Status     string         `db:"status"`
	Recipients pq.StringArray `db:"recipients"`
	Message    string         `db:"message"`
	MediaName  sql.NullString `db:"media_name"`
	MediaType  sql.NullString `db:"media_type"`
	DelayMS    int64          `db:"delay_ms"`
	Sent       int            `db:"sent"`
	Skipped    int            `db:"skipped"`
	Failed     int            `db:"failed"`
	Error      string         `db:"error"`
	CreatedAt  time.Time      `db:"created_at"`
	StartedAt  sql.NullTime   `db:"started_at"`
	FinishedAt sql.NullTime   `db:"finished_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func toRow(job *domain.Job, now time.Time) jobRow {
	row := jobRow{
		JobID:      job.ID,
		Status:     job.Status,
		Recipients: pq.StringArray(job.Recipients),
		Message:    job.Message,
		DelayMS:    job.Delay.Milliseconds(),
		Sent:       job.Counters.Sent,
		Skipped:    job.Counters.Skipped,
		Failed:     job.Counters.Failed,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		StartedAt:  nullTime(job.StartedAt),
		FinishedAt: nullTime(job.FinishedAt),
		UpdatedAt:  now,
	}
	if job.Media != nil {
		row.MediaName = sql.NullString{String: job.Media.Name, Valid: true}
		row.MediaType = sql.NullString{String: job.Media.MimeType, Valid: true}
	}
	if row.Recipients == nil {
		row.Recipients = pq.StringArray{}
	}
	return row
}

func (r jobRow) toJob() *domain.Job {
	job := &domain.Job{
		ID:         r.JobID,
		Status:     r.Status,
		Recipients: []string(r.Recipients),
		Message:    r.Message,
		Delay:      time.Duration(r.DelayMS) * time.Millisecond,
		Counters: domain.Counters{
			Sent:    r.Sent,
			Skipped: r.Skipped,
			Failed:  r.Failed,
		},
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
		StartedAt:  r.StartedAt.Time,
		FinishedAt: r.FinishedAt.Time,
	}
	if r.MediaName.Valid {
		job.Media = &domain.Media{Name: r.MediaName.String, MimeType: r.MediaType.String}
	}
	return job
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
