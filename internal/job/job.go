// Package job implements the job state machine of spec.md §3/§4.C: a job
// belongs to exactly one printer, is mutated only by its owning printer's
// worker or by a request handler holding the job's write lock, and is
// destroyed when expired by retention or when its printer is deleted and it
// is terminal.
package job

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexpevzner/goipp"

	"github.com/michaelrsweet/pappl-sub004/internal/reasons"
)

// State is one of the seven job states of spec.md §3.
type State int

const (
	Pending State = iota
	Held
	Processing
	Canceled
	Aborted
	Completed
	Stopped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Held:
		return "held"
	case Processing:
		return "processing"
	case Canceled:
		return "canceled"
	case Aborted:
		return "aborted"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of canceled/aborted/completed/stopped
// (spec.md §3 job state machine).
func (s State) IsTerminal() bool {
	switch s {
	case Canceled, Aborted, Completed, Stopped:
		return true
	default:
		return false
	}
}

const maxMessageBytes = 1023

// Job is the per-job mutable record (spec.md §3 "Job").
type Job struct {
	ID        int
	PrinterID int

	mu      sync.RWMutex
	state   State
	reasons *reasons.Set

	Filename string
	Format   string

	Impressions          int
	ImpressionsCompleted int

	Created    time.Time
	Processing time.Time
	Completed  time.Time

	// isCanceled is checked by the raster pipeline between rows/copies
	// without taking the job's write lock (spec.md §5 cancellation), so it
	// is a plain atomic flag rather than state protected by mu.
	isCanceled atomic.Bool

	message string

	// DriverData is the driver-opaque per-job extension pointer (spec.md
	// §3; §9 "favor a small typed interface (vtable) with a user_data
	// field").
	DriverData interface{}

	// Attrs is the job-attrs IPP group, built directly on goipp's
	// Attributes type (spec.md §3 "job-attrs IPP group").
	Attrs goipp.Attributes
}

// New creates a job in the HELD state (spec.md §4.C: "(new) --create--> HELD").
func New(id, printerID int, filename, format string) *Job {
	return &Job{
		ID:        id,
		PrinterID: printerID,
		state:     Held,
		reasons:   reasons.NewSet(),
		Filename:  filename,
		Format:    format,
		Created:   time.Now(),
	}
}

// State returns the current state under the read lock.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Reasons returns the job's state-reasons set.
func (j *Job) Reasons() *reasons.Set { return j.reasons }

// SetCanceled marks the job for cancellation. Idempotent; the worker
// performs the actual terminal transition (spec.md §5 "Cancel-Job is
// idempotent; sets is_canceled; worker checks ... terminal transition
// happens only in the worker").
func (j *Job) SetCanceled() {
	j.isCanceled.Store(true)
}

// IsCanceled reports the advisory cancel flag, checked by the raster
// pipeline between rows, between copies, and between sub-operations
// without acquiring the job's write lock.
func (j *Job) IsCanceled() bool {
	return j.isCanceled.Load()
}

// MarkDataReceived transitions HELD -> PENDING once the job's document body
// has been fully spooled (spec.md §4.C).
func (j *Job) MarkDataReceived() error {
	return j.transition(func() error {
		if j.state != Held {
			return fmt.Errorf("job %d: data-received requires held, have %s", j.ID, j.state)
		}
		j.state = Pending
		return nil
	})
}

// MarkProcessing transitions PENDING -> PROCESSING, setting the Processing
// timestamp and adding the job-printing reason (spec.md §4.C).
func (j *Job) MarkProcessing() error {
	return j.transition(func() error {
		if j.state != Pending {
			return fmt.Errorf("job %d: processing requires pending, have %s", j.ID, j.state)
		}
		j.state = Processing
		j.Processing = time.Now()
		j.reasons.Add("job-printing")
		return nil
	})
}

// Outcome describes how a job finished, used by MarkTerminal to decide
// which completion reasons to add (spec.md §4.C "On entry to any terminal
// state ... if errors-detected is set, add job-completed-with-errors; if
// warnings-detected is set, add job-completed-with-warnings").
type Outcome struct {
	ErrorsDetected   bool
	WarningsDetected bool
}

// MarkTerminal transitions the job into a terminal state, clearing
// job-printing, setting the Completed timestamp, and applying Outcome's
// completion reasons. Canceled jobs are routed to Canceled regardless of
// the requested target state, per the advisory cancel flag (spec.md §4.C).
func (j *Job) MarkTerminal(target State, outcome Outcome) error {
	if !target.IsTerminal() {
		return fmt.Errorf("job %d: %s is not a terminal state", j.ID, target)
	}
	return j.transition(func() error {
		if j.state.IsTerminal() {
			return nil // already terminal; terminal transition is idempotent
		}
		if j.isCanceled.Load() {
			target = Canceled
		}
		j.state = target
		j.Completed = time.Now()
		j.reasons.Remove("job-printing")
		if outcome.ErrorsDetected {
			j.reasons.Add("job-completed-with-errors")
		}
		if outcome.WarningsDetected {
			j.reasons.Add("job-completed-with-warnings")
		}
		return nil
	})
}

// transition runs fn once under the job's write lock. This is the single
// acquire/release point for all state changes — the spec.md §9 "open
// question" notes the source's process_job acquires the job write lock
// twice without an intervening release in one place; here every mutation
// goes through this one helper so that bug has no equivalent.
func (j *Job) transition(fn func() error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return fn()
}

// SetMessage sets the job's human-readable message, truncating to 1023
// bytes (spec.md §3).
func (j *Job) SetMessage(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(msg) > maxMessageBytes {
		msg = msg[:maxMessageBytes]
	}
	j.message = msg
}

func (j *Job) Message() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.message
}

// AddImpressions atomically advances the completed-impressions counter,
// used by the raster pipeline after each page (spec.md §4.C).
func (j *Job) AddImpressions(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ImpressionsCompleted += n
}

// CompletedImpressions returns the current completed-impressions count
// under the read lock, for callers outside the owning worker goroutine
// (e.g. Get-Job-Attributes) that must not race AddImpressions.
func (j *Job) CompletedImpressions() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.ImpressionsCompleted
}
