// Package scraper implements the Codelco job scraping pipeline: search page
// fetch, listing extraction, per-job detail enrichment and storage upsert.
package scraper

import "time"

// Listing holds the fields extractable from the search results page alone.
type Listing struct {
	ProcessID  string `json:"id_proceso"`
	Title      string `json:"titulo"`
	URL        string `json:"url"`
	Date       string `json:"fecha"`
	Region     string `json:"region"`
	PostalCode string `json:"codigo_postal"`
	Location   string `json:"ubicacion"`
	// InternalID is the numeric site id used to address the listing's
	// detail divs. It is not persisted.
	InternalID string `json:"-"`
}

// Details holds best-effort fields scraped from an individual posting page.
type Details struct {
	Description  string
	Requirements string
	ExtraInfo    string
}

// Job is a fully-assembled posting ready for snapshotting and storage.
type Job struct {
	ProcessID    string    `json:"id_proceso"`
	Title        string    `json:"titulo"`
	URL          string    `json:"url"`
	Date         string    `json:"fecha"`
	Region       string    `json:"region"`
	PostalCode   string    `json:"codigo_postal"`
	Location     string    `json:"ubicacion"`
	Description  string    `json:"descripcion"`
	Requirements string    `json:"requisitos"`
	ScrapedAt    time.Time `json:"fecha_scraped"`
}

// TestReport summarizes a connectivity probe against the search page.
type TestReport struct {
	PageSize   int       `json:"page_size"`
	JobsFound  int       `json:"jobs_found"`
	SampleJobs []Listing `json:"sample_jobs"`
}

// Result summarizes one scrape-and-save run.
type Result struct {
	Success      bool   `json:"success"`
	JobsCount    int    `json:"jobs_count"`
	DBSavedCount int    `json:"db_saved_count"`
	JSONFile     string `json:"json_file"`
}
