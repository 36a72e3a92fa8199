// Package store declares the model and repository interface for scraped jobs.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("scraped job not found")

// ScrapedJob models one imported Codelco posting in the codelco_jobs table.
type ScrapedJob struct {
	// ID is the storage primary key.
	ID int64
	// ExternalID is the source site's process id, the natural key for upserts.
	ExternalID string
	// Title is the posting title as shown on the listing page.
	Title string
	// URL is the absolute posting URL on the source site.
	URL string
	// ClosingDate is kept as an opaque string; the source format is inconsistent.
	ClosingDate string
	// Region and PostalCode come from the listing's detail elements.
	Region     string
	PostalCode string
	// Location is the derived "region - postal code" composite.
	Location string
	// Description and Requirements are best-effort and may be nil.
	Description  *string
	Requirements *string
	// Active is flipped to false by bulk deactivation; rows are never deleted.
	Active bool
	// ScrapedAt is when the run that produced this state fetched the posting.
	ScrapedAt time.Time
	// CreatedAt and UpdatedAt track row lifecycle in storage.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobRepository persists scraped jobs keyed by external process id.
type JobRepository interface {
	// FindByExternalID loads a row by process id or returns ErrNotFound.
	FindByExternalID(ctx context.Context, externalID string) (ScrapedJob, error)
	// Insert creates a new row and returns its primary key.
	Insert(ctx context.Context, job ScrapedJob) (int64, error)
	// Update overwrites the scrape fields of the row identified by job.ID,
	// reactivating it and refreshing UpdatedAt.
	Update(ctx context.Context, job ScrapedJob) error
	// ListActive returns active rows, most recently scraped first.
	ListActive(ctx context.Context, limit int) ([]ScrapedJob, error)
	// CountActive returns the number of active rows.
	CountActive(ctx context.Context) (int64, error)
	// LatestScrapedAt returns the newest ScrapedAt among active rows, or nil.
	LatestScrapedAt(ctx context.Context) (*time.Time, error)
	// DeactivateAll flips Active to false on every active row and returns the
	// number of rows affected.
	DeactivateAll(ctx context.Context) (int64, error)
}
