package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/EnsoG/empleo-talento/internal/config"
	"github.com/EnsoG/empleo-talento/internal/progress"
	"github.com/EnsoG/empleo-talento/internal/scraper"
	"github.com/EnsoG/empleo-talento/internal/storage/memory"
	"github.com/EnsoG/empleo-talento/internal/store"
)

const (
	testBaseURL   = "https://empleos.codelco.cl"
	testSearchURL = testBaseURL + "/search/"
)

type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	block chan struct{}
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	return f.pages[url], nil
}

func searchPageWithJob() string {
	return `<html><body>
<a class="jobTitle-link" href="/job/1001/" data-focus-tile="job-id-1001">Operador Mina Rajo</a>
<div id="job-1001-desktop-section-customfield1-value">CC-1001</div>
<div id="job-1001-desktop-section-date-value">31-12-2026</div>
<div id="job-1001-desktop-section-customfield2-value">Antofagasta</div>
<div id="job-1001-desktop-section-zip-value">1240000</div>
</body></html>`
}

type fixture struct {
	server  *Server
	fetcher *stubFetcher
	repo    store.JobRepository
	tracker *progress.Tracker
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.Config{
		Server:  config.ServerConfig{Port: 8080},
		Scraper: config.ScraperConfig{BaseURL: testBaseURL, SearchPath: "/search/"},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	f := &stubFetcher{pages: map[string]string{
		testSearchURL: searchPageWithJob(),
	}}
	repo := memory.NewJobStore()
	sc := scraper.New(scraper.Config{
		BaseURL:   testBaseURL,
		SearchURL: testSearchURL,
	}, f, repo, nil, nil, nil)
	tracker := progress.NewTracker(nil)
	runner := scraper.NewRunner(sc, tracker, nil)

	return &fixture{
		server:  NewServer(sc, runner, repo, cfg, nil),
		fetcher: f,
		repo:    repo,
		tracker: tracker,
	}
}

func (fx *fixture) do(t *testing.T, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (fx *fixture) waitTerminal(t *testing.T) progress.Snapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		snap := fx.tracker.Snapshot()
		if !snap.IsRunning && snap.Status != progress.StatusIdle {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("run never finished, status=%s", snap.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	rec := fx.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode(t, rec)["status"])
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestLogCarriesRequestID(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	cfg := config.Config{
		Server:  config.ServerConfig{Port: 8080},
		Scraper: config.ScraperConfig{BaseURL: testBaseURL, SearchPath: "/search/"},
	}
	repo := memory.NewJobStore()
	f := &stubFetcher{pages: map[string]string{testSearchURL: searchPageWithJob()}}
	sc := scraper.New(scraper.Config{BaseURL: testBaseURL, SearchURL: testSearchURL}, f, repo, nil, nil, nil)
	tracker := progress.NewTracker(nil)
	srv := NewServer(sc, scraper.NewRunner(sc, tracker, nil), repo, cfg, zap.New(core))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.NotEmpty(t, fields["request_id"])
	require.Equal(t, rec.Header().Get("X-Request-ID"), fields["request_id"])
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	rec := fx.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	rec := fx.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestScraperTestEndpoint(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	rec := fx.do(t, http.MethodGet, "/v1/scrapers/codelco/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	require.Equal(t, "success", body["status"])
	require.EqualValues(t, 1, body["jobs_found"])
	require.NotEmpty(t, body["sample_jobs"])
}

func TestScraperTestEndpointUnavailable(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	fx.fetcher.errs = map[string]error{testSearchURL: errors.New("connection refused")}

	rec := fx.do(t, http.MethodGet, "/v1/scrapers/codelco/test", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, decode(t, rec)["error"], "search page unavailable")
}

func TestExecuteScrape(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	rec := fx.do(t, http.MethodPost, "/v1/scrapers/codelco/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	require.Equal(t, "completed", body["status"])
	require.EqualValues(t, 1, body["jobs_count"])
	require.EqualValues(t, 1, body["db_saved_count"])

	row, err := fx.repo.FindByExternalID(context.Background(), "CC-1001")
	require.NoError(t, err)
	require.Equal(t, "Operador Mina Rajo", row.Title)
}

func TestRunScrapeDetached(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	rec := fx.do(t, http.MethodPost, "/v1/scrapers/codelco/run", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "started", decode(t, rec)["status"])

	require.Eventually(t, func() bool {
		n, err := fx.repo.CountActive(context.Background())
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	desc := "Descripción"
	_, err := fx.repo.Insert(context.Background(), store.ScrapedJob{
		ExternalID:  "CC-1001",
		Title:       "Operador Mina",
		URL:         testBaseURL + "/job/1001/",
		ClosingDate: "31-12-2026",
		Location:    "Antofagasta - 1240000",
		Description: &desc,
		Active:      true,
		ScrapedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	rec := fx.do(t, http.MethodGet, "/v1/scrapers/codelco/jobs?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	require.EqualValues(t, 1, body["count"])
	jobs := body["jobs"].([]any)
	first := jobs[0].(map[string]any)
	require.Equal(t, "Operador Mina", first["title"])
	require.Equal(t, "CC-1001", first["external_id"])
	require.Equal(t, "31-12-2026", first["publication_date"])
	require.Equal(t, "Descripción", first["description"])
}

func TestListJobsInvalidLimit(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	rec := fx.do(t, http.MethodGet, "/v1/scrapers/codelco/jobs?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeactivateJobs(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	_, err := fx.repo.Insert(context.Background(), store.ScrapedJob{
		ExternalID: "CC-1", Title: "Operador", Active: true, ScrapedAt: time.Now(),
	})
	require.NoError(t, err)

	rec := fx.do(t, http.MethodDelete, "/v1/scrapers/codelco/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, decode(t, rec)["deleted_count"])

	n, err := fx.repo.CountActive(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestScrapersStatus(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	rec := fx.do(t, http.MethodGet, "/v1/scrapers/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	require.EqualValues(t, 1, body["total_scrapers"])
	scrapers := body["scrapers"].(map[string]any)
	codelco := scrapers["codelco"].(map[string]any)
	require.Equal(t, testSearchURL, codelco["url"])
}

func TestAdminStartScrapeAndProgress(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	rec := fx.do(t, http.MethodPost, "/v1/admin/codelco/scrape", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "started", decode(t, rec)["status"])

	snap := fx.waitTerminal(t)
	require.Equal(t, progress.StatusCompleted, snap.Status)

	rec = fx.do(t, http.MethodGet, "/v1/admin/codelco/scrape/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prog := decode(t, rec)["progress"].(map[string]any)
	require.Equal(t, "completed", prog["status"])
	require.EqualValues(t, 100, prog["progress_percentage"])
}

func TestAdminStartScrapeConflict(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	block := make(chan struct{})
	fx.fetcher.block = block

	rec := fx.do(t, http.MethodPost, "/v1/admin/codelco/scrape", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = fx.do(t, http.MethodPost, "/v1/admin/codelco/scrape", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "running", body["status"])
	require.NotNil(t, body["current_progress"])

	close(block)
	fx.waitTerminal(t)
}

func TestAdminResetProgress(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	rec := fx.do(t, http.MethodPost, "/v1/admin/codelco/scrape", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	fx.waitTerminal(t)

	rec = fx.do(t, http.MethodPost, "/v1/admin/codelco/scrape/progress/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, progress.StatusIdle, fx.tracker.Snapshot().Status)
}

func TestAdminStatus(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	rec := fx.do(t, http.MethodGet, "/v1/admin/codelco/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	require.Equal(t, "never", body["last_scraping"])
	require.EqualValues(t, 0, body["active_jobs_count"])

	scraped := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	_, err := fx.repo.Insert(context.Background(), store.ScrapedJob{
		ExternalID: "CC-1", Title: "Operador", Active: true, ScrapedAt: scraped,
	})
	require.NoError(t, err)

	body = decode(t, fx.do(t, http.MethodGet, "/v1/admin/codelco/status", nil))
	require.EqualValues(t, 1, body["active_jobs_count"])
	require.Equal(t, scraped.Format(time.RFC3339), body["last_scraping"])
}

func TestAdminAuthGuard(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, func(c *config.Config) {
		c.Auth = config.AuthConfig{Enabled: true, APIKey: "sekrit"}
	})

	rec := fx.do(t, http.MethodGet, "/v1/admin/codelco/status", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = fx.do(t, http.MethodGet, "/v1/admin/codelco/status",
		http.Header{"X-Api-Key": {"sekrit"}})
	require.Equal(t, http.StatusOK, rec.Code)

	// Public routes stay open.
	rec = fx.do(t, http.MethodGet, "/v1/scrapers/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
