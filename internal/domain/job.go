package domain

import "time"

// Media is an attachment sent with the message text as caption.
type Media struct {
	Name     string
	MimeType string
	Data     []byte
}

// Metadata returns the attachment without its blob.
func (m *Media) Metadata() *Media {
	if m == nil {
		return nil
	}
	return &Media{Name: m.Name, MimeType: m.MimeType}
}

// Counters are the running per-job totals.
type Counters struct {
	Sent    int `json:"sent" db:"sent"`
	Skipped int `json:"skipped" db:"skipped"`
	Failed  int `json:"failed" db:"failed"`
}

// Add increments the counter matching the outcome.
func (c *Counters) Add(o Outcome) {
	switch o {
	case OutcomeSent:
		c.Sent++
	case OutcomeSkipped:
		c.Skipped++
	case OutcomeFailed:
		c.Failed++
	}
}

// Done is the number of recipients with an outcome.
func (c Counters) Done() int {
	return c.Sent + c.Skipped + c.Failed
}

// Job is one bulk send request: recipients, message and progress.
type Job struct {
	ID         string
	Status     string
	Recipients []string
	Message    string
	Media      *Media
	Delay      time.Duration
	Counters   Counters
	Error      string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Total is the number of resolved recipients.
func (j *Job) Total() int {
	return len(j.Recipients)
}

// MediaName returns the attachment file name, or "" for text-only jobs.
func (j *Job) MediaName() string {
	if j.Media == nil {
		return ""
	}
	return j.Media.Name
}

// Snapshot copies the job for readers outside the dispatch loop. The media
// blob is shared; it is never mutated after submission. Use Summary when
// the copy leaves the process.
func (j *Job) Snapshot() *Job {
	cp := *j
	cp.Recipients = append([]string(nil), j.Recipients...)
	return &cp
}

// Summary is a Snapshot without the media blob.
func (j *Job) Summary() *Job {
	cp := j.Snapshot()
	cp.Media = j.Media.Metadata()
	return cp
}
