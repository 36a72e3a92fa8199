package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/EnsoG/empleo-talento/internal/store"
)

const defaultJobsLimit = 50

// jobView is the row shape the frontend consumes.
type jobView struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Location        string `json:"location"`
	ExternalID      string `json:"external_id"`
	URL             string `json:"url"`
	Region          string `json:"region"`
	PostalCode      string `json:"postal_code"`
	PublicationDate string `json:"publication_date"`
	ScrapedAt       string `json:"scraped_at"`
	IsActive        bool   `json:"is_active"`
	Description     string `json:"description"`
	Requirements    string `json:"requirements"`
}

func toJobView(row store.ScrapedJob) jobView {
	return jobView{
		ID:              row.ID,
		Title:           row.Title,
		Location:        row.Location,
		ExternalID:      row.ExternalID,
		URL:             row.URL,
		Region:          row.Region,
		PostalCode:      row.PostalCode,
		PublicationDate: row.ClosingDate,
		ScrapedAt:       row.ScrapedAt.Format(time.RFC3339),
		IsActive:        row.Active,
		Description:     deref(row.Description),
		Requirements:    deref(row.Requirements),
	}
}

// testScraper probes the search page without saving anything.
func (s *Server) testScraper(w http.ResponseWriter, r *http.Request) {
	report, err := s.scraper.Test(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"message":     "scraper operating correctly",
		"page_size":   report.PageSize,
		"jobs_found":  report.JobsFound,
		"sample_jobs": report.SampleJobs,
	})
}

// executeScrape runs the full pipeline synchronously and reports the result.
func (s *Server) executeScrape(w http.ResponseWriter, r *http.Request) {
	result, err := s.scraper.ScrapeAndSave(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	msg := "scrape completed, no jobs found"
	if result.Success {
		msg = fmt.Sprintf("scrape completed, %d jobs found", result.JobsCount)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "completed",
		"message":        msg,
		"jobs_count":     result.JobsCount,
		"db_saved_count": result.DBSavedCount,
	})
}

// runScrapeDetached launches an untracked scrape in the background. The
// tracked admin trigger is the preferred entry point; this one exists for
// fire-and-forget callers that never poll progress.
func (s *Server) runScrapeDetached(w http.ResponseWriter, r *http.Request) {
	runCtx := context.WithoutCancel(r.Context())
	go func() {
		result, err := s.scraper.ScrapeAndSave(runCtx)
		if err != nil {
			s.logger.Error("detached scrape failed", zap.Error(err))
			return
		}
		s.logger.Info("detached scrape finished",
			zap.Int("jobs_count", result.JobsCount),
			zap.Int("db_saved_count", result.DBSavedCount))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "scrape started in the background",
	})
}

// listJobs returns active jobs, newest scrape first.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	rows, err := s.repo.ListActive(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	views := make([]jobView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toJobView(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"count":   len(views),
		"jobs":    views,
		"message": fmt.Sprintf("found %d scraped jobs", len(views)),
	})
}

// deactivateJobs soft-deletes every active row. Rows are kept for history.
func (s *Server) deactivateJobs(w http.ResponseWriter, r *http.Request) {
	count, err := s.repo.DeactivateAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to deactivate jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"message":       fmt.Sprintf("deactivated %d jobs", count),
		"deleted_count": count,
	})
}

// scrapersStatus describes the configured scrapers.
func (s *Server) scrapersStatus(w http.ResponseWriter, _ *http.Request) {
	info := map[string]any{
		"codelco": map[string]string{
			"name":        "Codelco scraper",
			"url":         s.cfg.Scraper.SearchURL(),
			"status":      "active",
			"description": "extracts job postings from the official Codelco careers site",
		},
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"scrapers":       info,
		"total_scrapers": len(info),
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
