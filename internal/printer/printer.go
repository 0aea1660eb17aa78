// Package printer implements the printer state machine and per-printer
// worker of spec.md §3/§4.D: one goroutine per printer pulls the oldest
// PENDING job, drives it through the raster pipeline, and goes back to
// sleep on a condition variable when the queue is empty.
package printer

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/michaelrsweet/pappl-sub004/internal/corelog"
	"github.com/michaelrsweet/pappl-sub004/internal/device"
	"github.com/michaelrsweet/pappl-sub004/internal/job"
	"github.com/michaelrsweet/pappl-sub004/internal/raster"
	"github.com/michaelrsweet/pappl-sub004/internal/reasons"
)

// DeviceHandle is the minimal shape runJob needs from an opened device,
// narrow enough that tests can substitute an in-memory fake instead of
// dialing a real endpoint.
type DeviceHandle interface {
	io.Writer
	Close() error
}

// State is the printer's coarse operating state (spec.md §3 "Printer").
type State int

const (
	Idle State = iota
	Processing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// NamePattern is the validation regex for printer names (spec.md §4.D
// "Create-Printer"): must start with a letter or underscore and contain
// only letters, digits, dot, dash, underscore.
var NamePattern = regexp.MustCompile(`^[A-Za-z_][-._A-Za-z0-9]*$`)

// MaxNameLength is the longest accepted printer name (spec.md §4.D).
const MaxNameLength = 127

// deviceRetryInterval is how long openDeviceWithRetry sleeps between device
// open attempts once a printer has gone Stopped (spec.md §7 "Device
// unavailable ... retries every 5s"). A package variable rather than a
// constant so tests can shrink it instead of running for real wall-clock
// seconds.
var deviceRetryInterval = 5 * time.Second

// SourceOpener abstracts spooling so the worker can read a job's document
// body without the printer package depending on a concrete spool layout.
type SourceOpener interface {
	Open(j *job.Job) (ReadCloserSize, error)
}

// ReadCloserSize is the minimal interface the raster pipeline needs to read
// a spooled job body.
type ReadCloserSize interface {
	Read(p []byte) (int, error)
	Close() error
}

// Printer is one printer's mutable state plus its worker goroutine (spec.md
// §3 "Printer", §5 "one worker goroutine per printer").
type Printer struct {
	ID           int
	Name         string
	ResourcePath string
	DeviceURI    string

	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	reasons *reasons.Set

	active    []*job.Job
	completed []*job.Job
	processing *job.Job

	isDeleted bool
	isDefault bool

	ReadyMedia []string

	driver     raster.Driver
	spool      SourceOpener
	resolver   device.Resolver
	log        *corelog.Logger
	openDevice func(ctx context.Context, uri, jobName string, resolver device.Resolver) (DeviceHandle, error)

	shutdown chan struct{}
	done     chan struct{}
}

// Config bundles the collaborators a Printer needs beyond its static
// identity (spec.md §4.D components).
type Config struct {
	ID           int
	Name         string
	ResourcePath string
	DeviceURI    string
	Driver       raster.Driver
	Spool        SourceOpener
	Resolver     device.Resolver
	Log          *corelog.Logger

	// OpenDevice overrides device.Open; tests inject a fake so the worker
	// loop can run without a real network endpoint. Must return something
	// satisfying io.Writer and Close() error.
	OpenDevice func(ctx context.Context, uri, jobName string, resolver device.Resolver) (DeviceHandle, error)
}

// ValidateName checks a candidate printer name against spec.md §4.D's
// Create-Printer rules.
func ValidateName(name string) error {
	if name == "" || len(name) > MaxNameLength {
		return fmt.Errorf("printer: name length must be 1-%d bytes", MaxNameLength)
	}
	if !NamePattern.MatchString(name) {
		return fmt.Errorf("printer: name %q does not match %s", name, NamePattern.String())
	}
	return nil
}

// New constructs a Printer in the IDLE state and starts its worker
// goroutine (spec.md §4.D "(new) --create--> IDLE").
func New(cfg Config) *Printer {
	p := &Printer{
		ID:           cfg.ID,
		Name:         cfg.Name,
		ResourcePath: cfg.ResourcePath,
		DeviceURI:    cfg.DeviceURI,
		state:        Idle,
		reasons:      reasons.NewSet(),
		driver:       cfg.Driver,
		spool:        cfg.Spool,
		resolver:     cfg.Resolver,
		log:          cfg.Log,
		openDevice:   cfg.OpenDevice,
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.worker()
	return p
}

// State returns the printer's current coarse state.
func (p *Printer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Reasons returns the printer's state-reasons set.
func (p *Printer) Reasons() *reasons.Set { return p.reasons }

// IsDefault reports whether this printer is the system default.
func (p *Printer) IsDefault() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isDefault
}

// SetDefault marks or clears this printer as the system default (spec.md
// §4.D: "the first successfully created printer becomes the default").
func (p *Printer) SetDefault(v bool) {
	p.mu.Lock()
	p.isDefault = v
	p.mu.Unlock()
}

// Submit enqueues a job for processing and wakes the worker (spec.md §4.D:
// "the worker wakes on a condition variable signaled whenever a job is
// queued").
func (p *Printer) Submit(j *job.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isDeleted {
		return fmt.Errorf("printer %d: deleted", p.ID)
	}
	p.active = append(p.active, j)
	p.cond.Signal()
	return nil
}

// Jobs returns a snapshot of the active and completed job lists.
func (p *Printer) Jobs() (active, completedJobs []*job.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	active = append([]*job.Job(nil), p.active...)
	completedJobs = append([]*job.Job(nil), p.completed...)
	return
}

// ProcessingJob returns the job currently being processed, or nil.
func (p *Printer) ProcessingJob() *job.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processing
}

// IsDeleted reports the tombstone flag (spec.md §4.D "Delete-Printer").
func (p *Printer) IsDeleted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isDeleted
}

// MarkDeleted sets the tombstone and wakes the worker so it can exit once
// any in-flight job finishes (spec.md §4.D: "new jobs are rejected; the
// printer is reaped once its job list is empty").
func (p *Printer) MarkDeleted() {
	p.mu.Lock()
	p.isDeleted = true
	p.cond.Signal()
	p.mu.Unlock()
	close(p.shutdown)
}

// Reapable reports whether a deleted printer has no active jobs left and
// its worker has exited, so the owning system can drop it.
func (p *Printer) Reapable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isDeleted || len(p.active) > 0 {
		return false
	}
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// worker is the per-printer goroutine: wait for a pending job, pop the
// oldest one, process it, repeat (spec.md §4.D, §5).
func (p *Printer) worker() {
	defer close(p.done)
	for {
		j := p.waitForNextJob()
		if j == nil {
			return // deleted and drained
		}
		p.processJob(j)
	}
}

// waitForNextJob blocks on the condition variable until a PENDING job is
// available, the printer is deleted with nothing left to do, or stopped.
func (p *Printer) waitForNextJob() *job.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		for i, cand := range p.active {
			if cand.State() == job.Pending {
				p.active = append(p.active[:i], p.active[i+1:]...)
				return cand
			}
		}
		if p.isDeleted && len(p.active) == 0 {
			return nil
		}
		p.cond.Wait()
	}
}

// stopReason explains why openDeviceWithRetry gave up without a device
// handle, so processJob can pick the right terminal state for the job.
type stopReason int

const (
	stopNone stopReason = iota
	stopCanceled
	stopDeleted
)

func (p *Printer) processJob(j *job.Job) {
	dh, reason := p.openDeviceWithRetry(j)
	if reason != stopNone {
		p.finishAbandoned(j, reason)
		return
	}
	defer dh.Close()

	p.mu.Lock()
	p.state = Processing
	p.processing = j
	p.mu.Unlock()

	if err := j.MarkProcessing(); err != nil {
		p.log.Warn("printer: mark-processing failed", "printer", p.Name, "job", j.ID, "err", err.Error())
	}

	outcome := p.runJob(j, dh)

	target := job.Completed
	if j.IsCanceled() {
		target = job.Canceled
	} else if outcome.ErrorsDetected {
		target = job.Aborted
	}
	if err := j.MarkTerminal(target, outcome); err != nil {
		p.log.Warn("printer: mark-terminal failed", "printer", p.Name, "job", j.ID, "err", err.Error())
	}

	p.mu.Lock()
	p.processing = nil
	p.completed = append(p.completed, j)
	if len(p.active) == 0 {
		p.state = Idle
		p.closeDeviceIfIdle()
	}
	p.mu.Unlock()
}

// finishAbandoned finalizes a job that never reached Processing because
// openDeviceWithRetry gave up waiting on it (job canceled by its client, or
// the printer deleted/shut down while the device was unavailable).
func (p *Printer) finishAbandoned(j *job.Job, reason stopReason) {
	target := job.Aborted
	if reason == stopCanceled {
		target = job.Canceled
	}
	if err := j.MarkTerminal(target, job.Outcome{}); err != nil {
		p.log.Warn("printer: mark-terminal failed", "printer", p.Name, "job", j.ID, "err", err.Error())
	}

	p.mu.Lock()
	p.processing = nil
	p.completed = append(p.completed, j)
	if len(p.active) == 0 && !p.isDeleted {
		p.state = Idle
	}
	p.mu.Unlock()
}

// openDeviceWithRetry opens j's device. A device that won't open is not a
// job error (spec.md §4.C step 2, §7 "Device unavailable"): the printer
// transitions to Stopped, logs the outage once, and retries every 5s
// indefinitely while the job stays Pending. The loop only ends early if the
// job is canceled by its client or the printer is deleted/shut down.
func (p *Printer) openDeviceWithRetry(j *job.Job) (DeviceHandle, stopReason) {
	open := p.openDevice
	if open == nil {
		open = openRealDevice
	}

	loggedOutage := false
	for {
		if j.IsCanceled() {
			return nil, stopCanceled
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		dh, err := open(ctx, p.DeviceURI, j.Filename, p.resolver)
		cancel()
		if err == nil {
			return dh, stopNone
		}

		p.mu.Lock()
		deleted := p.isDeleted
		if !deleted {
			p.state = Stopped
		}
		p.mu.Unlock()
		if deleted {
			return nil, stopDeleted
		}

		if !loggedOutage {
			p.log.Warn("printer: device unavailable, retrying", "printer", p.Name, "uri", p.DeviceURI, "job", j.ID, "err", err.Error())
			loggedOutage = true
		}

		select {
		case <-time.After(deviceRetryInterval):
		case <-p.shutdown:
			return nil, stopDeleted
		}
	}
}

// runJob reads the spooled document, resolves print options, and drives the
// raster pipeline against an already-open device (spec.md §4.C).
func (p *Printer) runJob(j *job.Job, dh DeviceHandle) job.Outcome {
	src, err := p.spool.Open(j)
	if err != nil {
		j.SetMessage("spool open failed: " + err.Error())
		return job.Outcome{ErrorsDetected: true}
	}
	defer src.Close()

	opts := raster.ResolveOptions(j.Attrs, nil, nil, raster.BuildDither())

	if err := raster.Process(j, p.driver, &opts, j.Format, dh, src); err != nil {
		j.SetMessage(err.Error())
		return job.Outcome{ErrorsDetected: true}
	}
	return job.Outcome{}
}

// openRealDevice adapts device.Open to the narrower DeviceHandle interface.
func openRealDevice(ctx context.Context, uri, jobName string, resolver device.Resolver) (DeviceHandle, error) {
	return device.Open(ctx, uri, jobName, resolver)
}

// closeDeviceIfIdle is called while holding p.mu whenever the active queue
// drains to empty. It does nothing: each device handle is opened and closed
// within processJob.
func (p *Printer) closeDeviceIfIdle() {}

// Shutdown sets the printer's state to Stopped and returns at once. It does
// not wake or stop the worker goroutine and does not make Submit fail:
// queued and newly submitted jobs are still processed, and processing a job
// sets the state back to Processing and, once the queue is empty, Idle.
func (p *Printer) Shutdown() {
	p.mu.Lock()
	p.state = Stopped
	p.mu.Unlock()
}
