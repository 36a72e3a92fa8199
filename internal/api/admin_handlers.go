package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/EnsoG/empleo-talento/internal/scraper"
)

// adminStartScrape launches a tracked scrape run. While a run is in flight
// the endpoint reports the current progress instead of starting another.
func (s *Server) adminStartScrape(w http.ResponseWriter, r *http.Request) {
	err := s.runner.Start(r.Context())
	if errors.Is(err, scraper.ErrAlreadyRunning) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"status":           "running",
			"message":          "a scrape run is already in progress",
			"current_progress": s.runner.Tracker().Snapshot(),
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "scrape started in the background, poll progress to monitor",
	})
}

// adminScrapeProgress returns the tracker snapshot for polling dashboards.
func (s *Server) adminScrapeProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"detail":   "progress retrieved successfully",
		"progress": s.runner.Tracker().Snapshot(),
	})
}

// adminResetProgress clears a finished or stuck tracker back to idle.
func (s *Server) adminResetProgress(w http.ResponseWriter, _ *http.Request) {
	s.runner.Tracker().Reset()
	writeJSON(w, http.StatusOK, map[string]string{
		"detail":  "progress reset successfully",
		"message": "scrape progress has been reset",
	})
}

// adminStatus reports storage counts and the time of the last completed run.
func (s *Server) adminStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.repo.CountActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read job stats")
		return
	}
	lastScraping := "never"
	latest, err := s.repo.LatestScrapedAt(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read job stats")
		return
	}
	if latest != nil {
		lastScraping = latest.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "success",
		"scraper_status":    "ready",
		"active_jobs_count": count,
		"last_scraping":     lastScraping,
		"system_health":     "operational",
	})
}
