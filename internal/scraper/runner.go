package scraper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/EnsoG/empleo-talento/internal/metrics"
	"github.com/EnsoG/empleo-talento/internal/progress"
)

// ErrAlreadyRunning is returned when a scrape is triggered while another run
// holds the tracker.
var ErrAlreadyRunning = errors.New("a scrape is already in progress")

// Runner owns the background execution of tracked scrape runs. Only one run
// may be in flight at a time; the tracker's TryStart is the gate.
type Runner struct {
	scraper *Scraper
	tracker *progress.Tracker
	logger  *zap.Logger
}

// NewRunner wires a Runner.
func NewRunner(s *Scraper, tracker *progress.Tracker, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{scraper: s, tracker: tracker, logger: logger}
}

// Tracker exposes the run tracker for status endpoints.
func (r *Runner) Tracker() *progress.Tracker {
	return r.tracker
}

// Start launches a scrape in the background and returns immediately. The
// claim on the tracker happens before the goroutine launches, so two
// concurrent calls cannot both start a run. The run outlives the triggering
// request; its context is detached from the caller's.
func (r *Runner) Start(ctx context.Context) error {
	if !r.tracker.TryStart("Iniciando scraper de Codelco") {
		return ErrAlreadyRunning
	}

	runCtx := context.WithoutCancel(ctx)
	go r.run(runCtx)
	return nil
}

// run executes the tracked pipeline. If it errors or panics, the run is
// retried once through the plain untracked pipeline so a transient fault or
// a progress-reporting bug cannot take the feature down.
func (r *Runner) run(ctx context.Context) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tracked scrape panicked, retrying without progress", zap.Any("panic", rec))
			r.fallback(ctx, start)
		}
	}()

	result, err := r.scraper.ScrapeAndSaveWithProgress(ctx, r.tracker)
	if err != nil {
		r.logger.Error("tracked scrape failed, retrying without progress", zap.Error(err))
		r.fallback(ctx, start)
		return
	}
	r.settle(result, start, "completed")
}

// fallback runs the pipeline without progress checkpoints and settles the
// tracker with the outcome.
func (r *Runner) fallback(ctx context.Context, start time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("fallback scrape panicked", zap.Any("panic", rec))
			r.tracker.SetError("scrape failed")
			metrics.ObserveRun("error", 0, time.Since(start))
		}
	}()

	result, err := r.scraper.ScrapeAndSave(ctx)
	if err != nil {
		r.tracker.SetError(err.Error())
		metrics.ObserveRun("error", 0, time.Since(start))
		return
	}
	r.settle(result, start, "fallback")
}

func (r *Runner) settle(result Result, start time.Time, outcome string) {
	elapsed := time.Since(start)
	if !result.Success {
		// An empty search page is a completed run with nothing to save.
		r.tracker.SetCompleted(0)
		metrics.ObserveRun("empty", 0, elapsed)
		return
	}
	r.tracker.SetCompleted(result.JobsCount)
	metrics.ObserveRun(outcome, result.JobsCount, elapsed)
}
