package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/EnsoG/empleo-talento/internal/fetcher"
	"github.com/EnsoG/empleo-talento/internal/metrics"
	"github.com/EnsoG/empleo-talento/internal/progress"
	"github.com/EnsoG/empleo-talento/internal/publisher"
	"github.com/EnsoG/empleo-talento/internal/storage"
	"github.com/EnsoG/empleo-talento/internal/store"
)

// Config parameterizes a Scraper.
type Config struct {
	BaseURL        string
	SearchURL      string
	SnapshotPrefix string
	// PublishTopic names the topic for run summaries. Empty disables publishing.
	PublishTopic string
	// ArchivePages mirrors every fetched page into the blob store, for
	// replaying extraction changes against real HTML offline.
	ArchivePages bool
}

// Scraper runs the Codelco pipeline end to end. All collaborators are
// required except tracker, which is passed per call.
type Scraper struct {
	cfg     Config
	fetcher fetcher.Fetcher
	repo    store.JobRepository
	blobs   storage.BlobStore
	pub     publisher.Publisher
	logger  *zap.Logger
	now     func() time.Time
}

// New wires a Scraper. Nil blob store and publisher degrade to no-ops.
func New(cfg Config, f fetcher.Fetcher, repo store.JobRepository, blobs storage.BlobStore, pub publisher.Publisher, logger *zap.Logger) *Scraper {
	if blobs == nil {
		blobs = storage.NoOpStore{}
	}
	if pub == nil {
		pub = publisher.NoOp{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SnapshotPrefix == "" {
		cfg.SnapshotPrefix = "empleos_codelco"
	}
	return &Scraper{
		cfg:     cfg,
		fetcher: f,
		repo:    repo,
		blobs:   blobs,
		pub:     pub,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Test fetches the search page and extracts listings without visiting detail
// pages or touching storage. It verifies connectivity and that the page
// structure still matches the extractor.
func (s *Scraper) Test(ctx context.Context) (TestReport, error) {
	html, err := s.fetcher.Fetch(ctx, s.cfg.SearchURL)
	if err != nil {
		return TestReport{}, fmt.Errorf("search page unavailable: %w", err)
	}
	listings, err := ExtractListings(html, s.cfg.BaseURL)
	if err != nil {
		return TestReport{}, err
	}
	sample := listings
	if len(sample) > 3 {
		sample = sample[:3]
	}
	if sample == nil {
		sample = []Listing{}
	}
	return TestReport{
		PageSize:   len(html),
		JobsFound:  len(listings),
		SampleJobs: sample,
	}, nil
}

// ScrapeAll fetches the search page, extracts listings and enriches each one
// with its detail page. Detail failures degrade to empty fields; only a
// failed search page fetch is fatal.
func (s *Scraper) ScrapeAll(ctx context.Context) ([]Job, error) {
	return s.scrapeAll(ctx, nil)
}

func (s *Scraper) scrapeAll(ctx context.Context, tracker *progress.Tracker) ([]Job, error) {
	if tracker != nil {
		tracker.SetStatus(progress.StatusFetchingPages, "Obteniendo página de búsqueda")
	}
	s.logger.Info("fetching search page", zap.String("url", s.cfg.SearchURL))

	html, err := s.fetcher.Fetch(ctx, s.cfg.SearchURL)
	if err != nil {
		metrics.ObservePage("search", "error")
		return nil, fmt.Errorf("search page unavailable: %w", err)
	}
	metrics.ObservePage("search", "ok")
	s.archivePage(ctx, "search", html)

	if tracker != nil {
		tracker.SetStatus(progress.StatusExtractingJobs, "Extrayendo ofertas de la página")
	}
	listings, err := ExtractListings(html, s.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	s.logger.Info("listings extracted", zap.Int("count", len(listings)))
	if tracker != nil {
		tracker.SetTotal(len(listings))
	}
	if len(listings) == 0 {
		return nil, nil
	}

	jobs := make([]Job, 0, len(listings))
	for i, listing := range listings {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("scrape canceled: %w", ctx.Err())
		default:
		}

		details := s.fetchDetails(ctx, listing)
		jobs = append(jobs, Job{
			ProcessID:    listing.ProcessID,
			Title:        listing.Title,
			URL:          listing.URL,
			Date:         listing.Date,
			Region:       listing.Region,
			PostalCode:   listing.PostalCode,
			Location:     listing.Location,
			Description:  details.Description,
			Requirements: details.Requirements,
			ScrapedAt:    s.now(),
		})
		if tracker != nil {
			tracker.SetProcessed(i + 1)
		}
	}

	s.logger.Info("scrape finished", zap.Int("jobs", len(jobs)))
	return jobs, nil
}

// fetchDetails never fails the run; a dead posting page just yields a job
// with no description.
func (s *Scraper) fetchDetails(ctx context.Context, listing Listing) Details {
	html, err := s.fetcher.Fetch(ctx, listing.URL)
	if err != nil {
		metrics.ObservePage("detail", "error")
		s.logger.Warn("detail page fetch failed", zap.String("url", listing.URL), zap.Error(err))
		return Details{}
	}
	metrics.ObservePage("detail", "ok")
	s.archivePage(ctx, "job_"+listing.InternalID, html)
	return ExtractDetails(html)
}

// archivePage stores raw fetched HTML next to the snapshots. Archive failures
// are logged and never fail the run.
func (s *Scraper) archivePage(ctx context.Context, name, html string) {
	if !s.cfg.ArchivePages {
		return
	}
	object := fmt.Sprintf("pages/%s_%s.html", name, s.now().Format("20060102_150405"))
	if _, err := s.blobs.PutObject(ctx, object, "text/html; charset=utf-8", strings.NewReader(html)); err != nil {
		s.logger.Warn("page archive failed", zap.String("object", object), zap.Error(err))
	}
}

// ScrapeAndSave runs the full pipeline: scrape, snapshot to the blob store,
// upsert into the repository and publish a run summary.
func (s *Scraper) ScrapeAndSave(ctx context.Context) (Result, error) {
	return s.scrapeAndSave(ctx, nil)
}

// ScrapeAndSaveWithProgress is ScrapeAndSave reporting phase transitions and
// per-job counters through the tracker.
func (s *Scraper) ScrapeAndSaveWithProgress(ctx context.Context, tracker *progress.Tracker) (Result, error) {
	return s.scrapeAndSave(ctx, tracker)
}

func (s *Scraper) scrapeAndSave(ctx context.Context, tracker *progress.Tracker) (Result, error) {
	jobs, err := s.scrapeAll(ctx, tracker)
	if err != nil {
		return Result{}, err
	}
	if len(jobs) == 0 {
		return Result{Success: false}, nil
	}

	jsonFile, err := s.saveSnapshot(ctx, jobs)
	if err != nil {
		// Snapshot loss is not worth failing a run that can still reach the DB.
		s.logger.Warn("snapshot save failed", zap.Error(err))
		jsonFile = ""
	}

	if tracker != nil {
		tracker.SetStatus(progress.StatusSavingToDB, "Guardando ofertas en la base de datos")
	}
	saved := s.saveJobs(ctx, jobs, tracker)

	result := Result{
		Success:      true,
		JobsCount:    len(jobs),
		DBSavedCount: saved,
		JSONFile:     jsonFile,
	}
	s.publishRunSummary(ctx, result)
	return result, nil
}

// saveSnapshot serializes the run to JSON and writes it to the blob store
// under a timestamped object name.
func (s *Scraper) saveSnapshot(ctx context.Context, jobs []Job) (string, error) {
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	name := fmt.Sprintf("%s_%s.json", s.cfg.SnapshotPrefix, s.now().Format("20060102_150405"))
	uri, err := s.blobs.PutObject(ctx, name, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store snapshot: %w", err)
	}
	if uri == "" {
		return name, nil
	}
	s.logger.Info("snapshot stored", zap.String("uri", uri))
	return uri, nil
}

// saveJobs upserts each record by process id. A failed record is logged and
// skipped so one bad row cannot sink the run.
func (s *Scraper) saveJobs(ctx context.Context, jobs []Job, tracker *progress.Tracker) int {
	saved := 0
	for _, job := range jobs {
		if err := s.upsert(ctx, job); err != nil {
			s.logger.Warn("job save failed",
				zap.String("process_id", job.ProcessID),
				zap.String("title", job.Title),
				zap.Error(err))
			continue
		}
		saved++
		if tracker != nil {
			tracker.SetSaved(saved)
		}
	}
	s.logger.Info("jobs saved", zap.Int("saved", saved), zap.Int("total", len(jobs)))
	return saved
}

func (s *Scraper) upsert(ctx context.Context, job Job) error {
	row := store.ScrapedJob{
		ExternalID:   job.ProcessID,
		Title:        job.Title,
		URL:          job.URL,
		ClosingDate:  job.Date,
		Region:       job.Region,
		PostalCode:   job.PostalCode,
		Location:     job.Location,
		Description:  optional(job.Description),
		Requirements: optional(job.Requirements),
		Active:       true,
		ScrapedAt:    job.ScrapedAt,
	}

	existing, err := s.repo.FindByExternalID(ctx, job.ProcessID)
	switch {
	case err == nil:
		row.ID = existing.ID
		if err := s.repo.Update(ctx, row); err != nil {
			return err
		}
		metrics.ObserveUpsert("update")
		return nil
	case errors.Is(err, store.ErrNotFound):
		if _, err := s.repo.Insert(ctx, row); err != nil {
			return err
		}
		metrics.ObserveUpsert("insert")
		return nil
	default:
		return err
	}
}

func (s *Scraper) publishRunSummary(ctx context.Context, result Result) {
	if s.cfg.PublishTopic == "" {
		return
	}
	payload := map[string]any{
		"source":         "codelco",
		"jobs_count":     result.JobsCount,
		"db_saved_count": result.DBSavedCount,
		"json_file":      result.JSONFile,
		"finished_at":    s.now().Format(time.RFC3339),
	}
	if _, err := s.pub.Publish(ctx, s.cfg.PublishTopic, payload); err != nil {
		s.logger.Warn("run summary publish failed", zap.Error(err))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
