package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuongbtq/bulksend/internal/domain"
)

func TestBuildListQuery(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		query, args := buildListQuery(JobFilter{PageSize: 20})
		assert.Contains(t, query, "FROM bulk_jobs WHERE 1=1 ORDER BY created_at DESC, job_id DESC LIMIT $1")
		assert.Equal(t, []interface{}{21}, args)
	})

	t.Run("status and cursor", func(t *testing.T) {
		cursor := &JobCursor{CreatedAt: base, JobID: "j1"}
		query, args := buildListQuery(JobFilter{Status: domain.JobStatusCompleted, PageSize: 5, Cursor: cursor})

		assert.Contains(t, query, "AND status = $1")
		assert.Contains(t, query, "AND (created_at, job_id) < ($2, $3)")
		assert.Contains(t, query, "LIMIT $4")
		assert.Equal(t, []interface{}{domain.JobStatusCompleted, base, "j1", 6}, args)
	})
}

func TestJobRow_RoundTrip(t *testing.T) {
	job := &domain.Job{
		ID:         "j1",
		Status:     domain.JobStatusCompleted,
		Recipients: []string{"+919723625050", "+919876543210"},
		Message:    "hello",
		Media:      &domain.Media{Name: "a.pdf", MimeType: "application/pdf", Data: []byte{1}},
		Delay:      2500 * time.Millisecond,
		Counters:   domain.Counters{Sent: 1, Failed: 1},
		CreatedAt:  base,
		StartedAt:  base.Add(time.Second),
	}

	row := toRow(job, base.Add(time.Minute))
	assert.Equal(t, int64(2500), row.DelayMS)
	assert.True(t, row.StartedAt.Valid)
	assert.False(t, row.FinishedAt.Valid)
	assert.True(t, row.MediaName.Valid)

	back := row.toJob()
	assert.Equal(t, job.Recipients, back.Recipients)
	assert.Equal(t, job.Delay, back.Delay)
	assert.Equal(t, job.Counters, back.Counters)
	assert.True(t, back.FinishedAt.IsZero())
	assert.Equal(t, "a.pdf", back.MediaName())
	assert.Nil(t, back.Media.Data)
}

func TestJobRow_TextOnly(t *testing.T) {
	row := toRow(&domain.Job{ID: "j2", CreatedAt: base}, base)
	assert.False(t, row.MediaName.Valid)
	assert.NotNil(t, row.Recipients)
	assert.Nil(t, row.toJob().Media)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)
