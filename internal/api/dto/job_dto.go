package dto

import (
	"time"

	"github.com/cuongbtq/bulksend/internal/domain"
	"github.com/cuongbtq/bulksend/internal/session"
)

// SendResponse is returned once a job is accepted.
type SendResponse struct {
	Status string `json:"status"`
	Total  int    `json:"total"`
	JobID  string `json:"job_id"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID      string   `json:"job_id"`
	Status     string   `json:"status"`
	Total      int      `json:"total"`
	Sent       int      `json:"sent"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	DelayMs    int64    `json:"delay_ms"`
	Media      string   `json:"media,omitempty"`
	Message    string   `json:"message,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Error      string   `json:"error,omitempty"`
	CreatedAt  string   `json:"created_at"`
	StartedAt  string   `json:"started_at,omitempty"`
	FinishedAt string   `json:"finished_at,omitempty"`
}

// NewJobDTO maps a job for responses. Detail adds message and recipients.
func NewJobDTO(job *domain.Job, detail bool) JobDTO {
	out := JobDTO{
		JobID:      job.ID,
		Status:     job.Status,
		Total:      job.Total(),
		Sent:       job.Counters.Sent,
		Skipped:    job.Counters.Skipped,
		Failed:     job.Counters.Failed,
		DelayMs:    job.Delay.Milliseconds(),
		Media:      job.MediaName(),
		Error:      job.Error,
		CreatedAt:  formatTime(job.CreatedAt),
		StartedAt:  formatTime(job.StartedAt),
		FinishedAt: formatTime(job.FinishedAt),
	}
	if detail {
		out.Message = job.Message
		out.Recipients = job.Recipients
	}
	return out
}

type SessionDTO struct {
	State string `json:"state"`
	Ready bool   `json:"ready"`
	QR    string `json:"qr,omitempty"`
	JID   string `json:"jid,omitempty"`
	Since string `json:"since,omitempty"`
}

func NewSessionDTO(info session.Info) SessionDTO {
	return SessionDTO{
		State: info.State.String(),
		Ready: info.Ready,
		QR:    info.QR,
		JID:   info.JID,
		Since: formatTime(info.Since),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
