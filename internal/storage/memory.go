package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/cuongbtq/bulksend/internal/domain"
)

// Memory is the default store. It keeps at most max jobs, evicting the
// oldest finished ones first.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	max  int
}

// NewMemory returns an empty store holding at most max jobs; max <= 0
// means 1000.
func NewMemory(max int) *Memory {
	if max <= 0 {
		max = 1000
	}
	return &Memory{
		jobs: make(map[string]*domain.Job),
		max:  max,
	}
}

// Save stores a copy of job without its media blob.
func (m *Memory) Save(ctx context.Context, job *domain.Job) error {
	cp := job.Summary()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs[cp.ID] = cp
	m.evictLocked()
	return nil
}

// Get returns a copy of the stored job or domain.ErrJobNotFound.
func (m *Memory) Get(ctx context.Context, id string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Snapshot(), nil
}

// List returns jobs matching filter, newest first, with at most one row
// beyond the page size so callers can tell whether another page exists.
func (m *Memory) List(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Job
	for _, job := range m.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil && !filter.Cursor.Before(job) {
			continue
		}
		out = append(out, job.Snapshot())
	}

	sortNewestFirst(out)
	if filter.PageSize > 0 && len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

// Len returns the number of stored jobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

func (m *Memory) evictLocked() {
	if len(m.jobs) <= m.max {
		return
	}

	finished := make([]*domain.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if domain.IsTerminalStatus(job.Status) {
			finished = append(finished, job)
		}
	}
	sortNewestFirst(finished)

	for i := len(finished) - 1; i >= 0 && len(m.jobs) > m.max; i-- {
		delete(m.jobs, finished[i].ID)
	}
}

func sortNewestFirst(jobs []*domain.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
