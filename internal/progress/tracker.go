// Package progress tracks the state of an in-flight scrape run for polling
// endpoints. A Tracker is a single mutex-guarded state object owned by the
// scraper subsystem; it is not durable across restarts.
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status denotes the phase of a scrape run.
type Status string

// Scrape run statuses. Idle is both the initial state and the state after a
// reset; Completed and Error are terminal for a given run.
const (
	StatusIdle           Status = "idle"
	StatusStarting       Status = "starting"
	StatusFetchingPages  Status = "fetching_pages"
	StatusExtractingJobs Status = "extracting_jobs"
	StatusSavingToDB     Status = "saving_to_db"
	StatusCompleted      Status = "completed"
	StatusError          Status = "error"
)

// Fixed percent anchors per phase. Extraction refines within (50, 80] using
// processed/total, saving within (80, 100] using saved/total.
const (
	percentStarting   = 5.0
	percentFetching   = 20.0
	percentExtracting = 50.0
	percentSaving     = 80.0
	percentCompleted  = 100.0

	extractBand = 30.0
	saveBand    = 20.0
)

// Snapshot is the materialized tracker state returned to polling callers.
type Snapshot struct {
	Status             Status     `json:"status"`
	ProgressPercentage float64    `json:"progress_percentage"`
	CurrentStep        string     `json:"current_step"`
	TotalJobsFound     int        `json:"total_jobs_found"`
	JobsProcessed      int        `json:"jobs_processed"`
	JobsSaved          int        `json:"jobs_saved"`
	StartTime          *time.Time `json:"start_time"`
	EndTime            *time.Time `json:"end_time"`
	DurationSeconds    *float64   `json:"duration_seconds"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	IsRunning          bool       `json:"is_running"`
	IsCompleted        bool       `json:"is_completed"`
	HasError           bool       `json:"has_error"`
}

// Callback receives a snapshot after every tracker mutation. Panics inside a
// callback are recovered and logged; the callback stays registered.
type Callback func(Snapshot)

// Tracker holds the progress of at most one scrape run. All mutations happen
// under a single mutex so concurrent readers always observe a consistent
// composite state.
type Tracker struct {
	mu        sync.Mutex
	logger    *zap.Logger
	status    Status
	percent   float64
	step      string
	total     int
	processed int
	saved     int
	start     *time.Time
	end       *time.Time
	errMsg    string
	callbacks []Callback
	now       func() time.Time
}

// NewTracker returns an idle Tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		logger: logger,
		status: StatusIdle,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// TryStart atomically transitions Idle (or a terminal state) to Starting,
// clearing any previous run. It returns false without touching state when a
// run is already in flight, closing the check-then-act race between the
// idle-check and the launch.
func (t *Tracker) TryStart(step string) bool {
	t.mu.Lock()
	if isRunning(t.status) {
		t.mu.Unlock()
		return false
	}
	t.clearLocked()
	t.status = StatusStarting
	t.percent = percentStarting
	t.step = step
	now := t.now()
	t.start = &now
	snap, cbs := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap, cbs)
	return true
}

// SetStatus transitions the run to the given phase, applying the phase's
// fixed percent anchor and recording start/end timestamps where applicable.
func (t *Tracker) SetStatus(status Status, step string) {
	t.mu.Lock()
	t.status = status
	t.step = step
	switch status {
	case StatusStarting:
		t.percent = percentStarting
		now := t.now()
		t.start = &now
	case StatusFetchingPages:
		t.percent = percentFetching
	case StatusExtractingJobs:
		t.percent = percentExtracting
	case StatusSavingToDB:
		t.percent = percentSaving
	case StatusCompleted:
		t.percent = percentCompleted
		now := t.now()
		t.end = &now
	case StatusError:
		now := t.now()
		t.end = &now
	case StatusIdle:
		t.percent = 0
	}
	snap, cbs := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap, cbs)
}

// SetTotal records how many listings the run found.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	t.total = total
	snap, cbs := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap, cbs)
}

// SetProcessed records how many listings have had their detail pages fetched
// and refines the percent within the extraction band.
func (t *Tracker) SetProcessed(processed int) {
	t.mu.Lock()
	t.processed = processed
	if t.status == StatusExtractingJobs && t.total > 0 {
		t.percent = percentExtracting + float64(t.processed)/float64(t.total)*extractBand
	}
	snap, cbs := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap, cbs)
}

// SetSaved records how many records reached storage and refines the percent
// within the saving band.
func (t *Tracker) SetSaved(saved int) {
	t.mu.Lock()
	t.saved = saved
	if t.status == StatusSavingToDB && t.total > 0 {
		t.percent = percentSaving + float64(t.saved)/float64(t.total)*saveBand
	}
	snap, cbs := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap, cbs)
}

// SetCompleted marks the run finished with the given job count. Used by the
// fallback path, which completes a run that never went through the phased
// checkpoints.
func (t *Tracker) SetCompleted(jobsFound int) {
	t.mu.Lock()
	t.status = StatusCompleted
	t.percent = percentCompleted
	t.total = jobsFound
	t.step = "scrape completed"
	now := t.now()
	t.end = &now
	snap, cbs := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap, cbs)
}

// SetError marks the run failed with the given message.
func (t *Tracker) SetError(msg string) {
	t.mu.Lock()
	t.status = StatusError
	t.errMsg = msg
	t.step = "scrape failed"
	now := t.now()
	t.end = &now
	snap, cbs := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap, cbs)
}

// Reset returns the tracker to Idle, discarding the previous run's state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.clearLocked()
	snap, cbs := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap, cbs)
}

// Snapshot returns a fully-materialized copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, _ := t.snapshotLocked()
	return snap
}

// AddCallback registers a callback fired after every mutation.
func (t *Tracker) AddCallback(cb Callback) {
	if cb == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

func (t *Tracker) clearLocked() {
	t.status = StatusIdle
	t.percent = 0
	t.step = ""
	t.total = 0
	t.processed = 0
	t.saved = 0
	t.start = nil
	t.end = nil
	t.errMsg = ""
}

func (t *Tracker) snapshotLocked() (Snapshot, []Callback) {
	snap := Snapshot{
		Status:             t.status,
		ProgressPercentage: round1(t.percent),
		CurrentStep:        t.step,
		TotalJobsFound:     t.total,
		JobsProcessed:      t.processed,
		JobsSaved:          t.saved,
		ErrorMessage:       t.errMsg,
		IsRunning:          isRunning(t.status),
		IsCompleted:        t.status == StatusCompleted,
		HasError:           t.status == StatusError,
	}
	if t.start != nil {
		start := *t.start
		snap.StartTime = &start
		end := t.now()
		if t.end != nil {
			end = *t.end
			endCopy := end
			snap.EndTime = &endCopy
		}
		dur := round1(end.Sub(start).Seconds())
		snap.DurationSeconds = &dur
	}
	cbs := make([]Callback, len(t.callbacks))
	copy(cbs, t.callbacks)
	return snap, cbs
}

// notify runs outside the tracker lock so a callback may read the tracker
// without deadlocking.
func (t *Tracker) notify(snap Snapshot, cbs []Callback) {
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Warn("progress callback panicked", zap.Any("panic", r))
				}
			}()
			cb(snap)
		}()
	}
}

func isRunning(s Status) bool {
	switch s {
	case StatusIdle, StatusCompleted, StatusError:
		return false
	default:
		return true
	}
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}
