// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EnsoG/empleo-talento/internal/store"
)

// JobStoreConfig controls the Postgres connection pool used for job rows.
type JobStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pgxPool is the subset of pgxpool.Pool the store needs. pgxmock implements
// it for tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore implements store.JobRepository on the codelco_jobs table.
type JobStore struct {
	pool pgxPool
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool pgxPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const jobColumns = `id, external_id, title, url, closing_date, region, postal_code,
	location, description, requirements, active, scraped_at, created_at, updated_at`

// FindByExternalID loads a row by the source site's process id.
func (s *JobStore) FindByExternalID(ctx context.Context, externalID string) (store.ScrapedJob, error) {
	query := `SELECT ` + jobColumns + ` FROM codelco_jobs WHERE external_id = $1`
	row := s.pool.QueryRow(ctx, query, externalID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ScrapedJob{}, store.ErrNotFound
		}
		return store.ScrapedJob{}, fmt.Errorf("find job by external id: %w", err)
	}
	return job, nil
}

// Insert creates a new row and returns its primary key.
func (s *JobStore) Insert(ctx context.Context, job store.ScrapedJob) (int64, error) {
	query := `
INSERT INTO codelco_jobs (
	external_id, title, url, closing_date, region, postal_code,
	location, description, requirements, active, scraped_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
RETURNING id`
	var id int64
	err := s.pool.QueryRow(ctx, query,
		job.ExternalID, job.Title, job.URL, job.ClosingDate, job.Region,
		job.PostalCode, job.Location, job.Description, job.Requirements,
		job.Active, job.ScrapedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// Update overwrites the scrape fields of an existing row, reactivating it.
func (s *JobStore) Update(ctx context.Context, job store.ScrapedJob) error {
	query := `
UPDATE codelco_jobs SET
	external_id = $2,
	title = $3,
	url = $4,
	closing_date = $5,
	region = $6,
	postal_code = $7,
	location = $8,
	description = $9,
	requirements = $10,
	active = TRUE,
	scraped_at = $11,
	updated_at = now()
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		job.ID, job.ExternalID, job.Title, job.URL, job.ClosingDate, job.Region,
		job.PostalCode, job.Location, job.Description, job.Requirements, job.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListActive returns active rows, most recently scraped first.
func (s *JobStore) ListActive(ctx context.Context, limit int) ([]store.ScrapedJob, error) {
	query := `SELECT ` + jobColumns + `
FROM codelco_jobs WHERE active ORDER BY scraped_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()

	var jobs []store.ScrapedJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

// CountActive returns the number of active rows.
func (s *JobStore) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM codelco_jobs WHERE active`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return n, nil
}

// LatestScrapedAt returns the newest scraped_at among active rows, or nil.
func (s *JobStore) LatestScrapedAt(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	err := s.pool.QueryRow(ctx, `SELECT max(scraped_at) FROM codelco_jobs WHERE active`).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("latest scraped_at: %w", err)
	}
	return latest, nil
}

// DeactivateAll flips every active row to inactive.
func (s *JobStore) DeactivateAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE codelco_jobs SET active = FALSE, updated_at = now() WHERE active`)
	if err != nil {
		return 0, fmt.Errorf("deactivate jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (store.ScrapedJob, error) {
	var job store.ScrapedJob
	err := row.Scan(
		&job.ID, &job.ExternalID, &job.Title, &job.URL, &job.ClosingDate,
		&job.Region, &job.PostalCode, &job.Location, &job.Description,
		&job.Requirements, &job.Active, &job.ScrapedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return store.ScrapedJob{}, err
	}
	return job, nil
}
