package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/bulksend/internal/domain"
	"github.com/cuongbtq/bulksend/shared/postgresql"
)

const schema = `
	CREATE TABLE IF NOT EXISTS bulk_jobs (
		job_id      TEXT PRIMARY KEY,
		status      TEXT NOT NULL,
		recipients  TEXT[] NOT NULL DEFAULT '{}',
		message     TEXT NOT NULL DEFAULT '',
		media_name  TEXT,
		media_type  TEXT,
		delay_ms    BIGINT NOT NULL,
		sent        INTEGER NOT NULL DEFAULT 0,
		skipped     INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		started_at  TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		updated_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS bulk_jobs_created_idx ON bulk_jobs (created_at DESC, job_id DESC);
	CREATE INDEX IF NOT EXISTS bulk_jobs_status_idx ON bulk_jobs (status);
`

const jobColumns = `
	job_id, status, recipients, message, media_name, media_type, delay_ms,
	sent, skipped, failed, error, created_at, started_at, finished_at, updated_at
`

type Postgres struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPostgres(pg *postgresql.Client) *Postgres {
	return &Postgres{
		db:  pg.GetDB(),
		now: time.Now,
	}
}

// EnsureSchema creates the bulk_jobs table when missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create bulk_jobs schema: %w", err)
	}
	return nil
}

func (s *Postgres) Save(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO bulk_jobs (` + jobColumns + `) VALUES (
			:job_id, :status, :recipients, :message, :media_name, :media_type, :delay_ms,
			:sent, :skipped, :failed, :error, :created_at, :started_at, :finished_at, :updated_at
		)
		ON CONFLICT (job_id) DO UPDATE SET
			status      = EXCLUDED.status,
			sent        = EXCLUDED.sent,
			skipped     = EXCLUDED.skipped,
			failed      = EXCLUDED.failed,
			error       = EXCLUDED.error,
			started_at  = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			updated_at  = EXCLUDED.updated_at
	`

	if _, err := s.db.NamedExecContext(ctx, query, toRow(job, s.now())); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, id string) (*domain.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM bulk_jobs WHERE job_id = $1`

	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toJob(), nil
}

func (s *Postgres) List(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	query, args := buildListQuery(filter)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.toJob())
	}
	return jobs, nil
}

func buildListQuery(filter JobFilter) (string, []interface{}) {
	query := `SELECT ` + jobColumns + ` FROM bulk_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	return query, args
}
