// Package storage keeps the history of bulk jobs. Jobs are never resumed
// from storage; it only answers status and listing queries.
package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/bulksend/internal/domain"
)

// Store persists job snapshots.
type Store interface {
	// Save inserts or replaces the job snapshot. Media bytes are not stored.
	Save(ctx context.Context, job *domain.Job) error
	// Get returns domain.ErrJobNotFound for unknown ids.
	Get(ctx context.Context, id string) (*domain.Job, error)
	// List returns jobs newest first, at most PageSize+1 of them so the
	// caller can tell whether another page exists.
	List(ctx context.Context, filter JobFilter) ([]*domain.Job, error)
}

type JobFilter struct {
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor points at the last job of the previous page.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// Before reports whether job sorts after the cursor in newest-first order.
func (c *JobCursor) Before(job *domain.Job) bool {
	if job.CreatedAt.Equal(c.CreatedAt) {
		return job.ID < c.JobID
	}
	return job.CreatedAt.Before(c.CreatedAt)
}

func DecodeJobCursor(cursorStr string) (*JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &JobCursor{
		CreatedAt: time.Unix(0, createdAt),
		JobID:     parts[1],
	}, nil
}

func EncodeJobCursor(cursor *JobCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.JobID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
