// Package memory implements store.JobRepository in process memory. It backs
// local development and tests where Postgres is not available.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/EnsoG/empleo-talento/internal/store"
)

// JobStore keeps scraped jobs in a map keyed by primary key.
type JobStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]store.ScrapedJob
	byExt  map[string]int64
	now    func() time.Time
}

// NewJobStore returns an empty store.
func NewJobStore() *JobStore {
	return &JobStore{
		nextID: 1,
		rows:   make(map[int64]store.ScrapedJob),
		byExt:  make(map[string]int64),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FindByExternalID implements store.JobRepository.
func (s *JobStore) FindByExternalID(_ context.Context, externalID string) (store.ScrapedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExt[externalID]
	if !ok {
		return store.ScrapedJob{}, store.ErrNotFound
	}
	return s.rows[id], nil
}

// Insert implements store.JobRepository.
func (s *JobStore) Insert(_ context.Context, job store.ScrapedJob) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	job.ID = s.nextID
	s.nextID++
	job.CreatedAt = now
	job.UpdatedAt = now
	s.rows[job.ID] = job
	s.byExt[job.ExternalID] = job.ID
	return job.ID, nil
}

// Update implements store.JobRepository.
func (s *JobStore) Update(_ context.Context, job store.ScrapedJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rows[job.ID]
	if !ok {
		return store.ErrNotFound
	}
	job.CreatedAt = existing.CreatedAt
	job.Active = true
	job.UpdatedAt = s.now()
	s.rows[job.ID] = job
	s.byExt[job.ExternalID] = job.ID
	return nil
}

// ListActive implements store.JobRepository.
func (s *JobStore) ListActive(_ context.Context, limit int) ([]store.ScrapedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]store.ScrapedJob, 0, len(s.rows))
	for _, row := range s.rows {
		if row.Active {
			jobs = append(jobs, row)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].ScrapedAt.Equal(jobs[j].ScrapedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].ScrapedAt.After(jobs[j].ScrapedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// CountActive implements store.JobRepository.
func (s *JobStore) CountActive(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, row := range s.rows {
		if row.Active {
			n++
		}
	}
	return n, nil
}

// LatestScrapedAt implements store.JobRepository.
func (s *JobStore) LatestScrapedAt(_ context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *time.Time
	for _, row := range s.rows {
		if !row.Active {
			continue
		}
		if latest == nil || row.ScrapedAt.After(*latest) {
			ts := row.ScrapedAt
			latest = &ts
		}
	}
	return latest, nil
}

// DeactivateAll implements store.JobRepository.
func (s *JobStore) DeactivateAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for id, row := range s.rows {
		if !row.Active {
			continue
		}
		row.Active = false
		row.UpdatedAt = now
		s.rows[id] = row
		n++
	}
	return n, nil
}
