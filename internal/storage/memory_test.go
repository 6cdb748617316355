package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/bulksend/internal/domain"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newJob(id string, offset time.Duration, status string) *domain.Job {
	return &domain.Job{
		ID:         id,
		Status:     status,
		Recipients: []string{"+919723625050"},
		Message:    "hello",
		Delay:      2 * time.Second,
		CreatedAt:  base.Add(offset),
	}
}

func TestMemory_SaveGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(10)

	job := newJob("a", 0, domain.JobStatusPending)
	job.Media = &domain.Media{Name: "promo.png", MimeType: "image/png", Data: []byte{1, 2, 3}}
	require.NoError(t, s.Save(ctx, job))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Message)
	require.NotNil(t, got.Media)
	assert.Equal(t, "promo.png", got.Media.Name)
	assert.Nil(t, got.Media.Data)

	// Stored copies are independent of the caller's job.
	job.Status = domain.JobStatusRunning
	job.Recipients[0] = "changed"
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Equal(t, "+919723625050", got.Recipients[0])

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestMemory_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(10)

	job := newJob("a", 0, domain.JobStatusRunning)
	require.NoError(t, s.Save(ctx, job))

	job.Status = domain.JobStatusCompleted
	job.Counters = domain.Counters{Sent: 1}
	require.NoError(t, s.Save(ctx, job))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 1, got.Counters.Sent)
	assert.Equal(t, 1, s.Len())
}

func TestMemory_ListPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(100)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(ctx, newJob(fmt.Sprintf("job-%d", i), time.Duration(i)*time.Minute, domain.JobStatusCompleted)))
	}
	// Same timestamp as job-4: ties break on id, descending.
	require.NoError(t, s.Save(ctx, newJob("job-9", 4*time.Minute, domain.JobStatusFailed)))

	page, err := s.List(ctx, JobFilter{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "job-9", page[0].ID)
	assert.Equal(t, "job-4", page[1].ID)

	last := page[1]
	page, err = s.List(ctx, JobFilter{PageSize: 2, Cursor: &JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID}})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "job-3", page[0].ID)
	assert.Equal(t, "job-2", page[1].ID)

	page, err = s.List(ctx, JobFilter{PageSize: 10, Status: domain.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "job-9", page[0].ID)
}

func TestMemory_EvictsOldestFinished(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(2)

	require.NoError(t, s.Save(ctx, newJob("old-running", 0, domain.JobStatusRunning)))
	require.NoError(t, s.Save(ctx, newJob("old-done", time.Minute, domain.JobStatusCompleted)))
	require.NoError(t, s.Save(ctx, newJob("new-done", 2*time.Minute, domain.JobStatusCompleted)))

	assert.Equal(t, 2, s.Len())
	_, err := s.Get(ctx, "old-done")
	require.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = s.Get(ctx, "old-running")
	require.NoError(t, err)
}

func TestJobCursor_RoundTrip(t *testing.T) {
	c := &JobCursor{CreatedAt: base.Add(1500 * time.Millisecond), JobID: "3f1c"}

	decoded, err := DecodeJobCursor(EncodeJobCursor(c))
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, "3f1c", decoded.JobID)

	none, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDecodeJobCursor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{name: "not base64", cursor: "%%%"},
		{name: "missing separator", cursor: "MTIz"},     // "123"
		{name: "bad timestamp", cursor: "YWJjfGpvYg=="}, // "abc|job"
		{name: "empty id", cursor: "MTIzfA=="},          // "123|"
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJobCursor(tt.cursor)
			assert.Error(t, err)
		})
	}
}
