package core

import (
	"io"
	"sync"

	"github.com/michaelrsweet/pappl-sub004/internal/job"
	"github.com/michaelrsweet/pappl-sub004/internal/raster"
)

// DriverFactory builds a raster.Driver for a printer being created; the
// driver reports its own capabilities. Concrete printer applications register real
// drivers under a model name; "auto" falls back to genericDriver (spec.md
// §4.D "driver name is known (or 'auto' with an auto-add callback
// registered)").
type DriverFactory func() raster.Driver

// DriverRegistry maps driver ids to factories, mirroring the teacher's
// db.driver registry pattern (server/internal/db/driver.go) adapted from a
// SQL-dialect registry to a printer-driver registry.
type DriverRegistry struct {
	mu        sync.RWMutex
	factories map[string]DriverFactory
}

// NewDriverRegistry creates a registry pre-seeded with the "generic" driver,
// the id Create-Printer's "auto" path resolves to.
func NewDriverRegistry() *DriverRegistry {
	r := &DriverRegistry{factories: make(map[string]DriverFactory)}
	r.Register("generic", func() raster.Driver { return newGenericDriver() })
	return r
}

// Register adds or replaces a driver factory under id.
func (r *DriverRegistry) Register(id string, f DriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// Known reports whether id has a registered factory.
func (r *DriverRegistry) Known(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// New builds a driver instance for id, resolving "auto" to "generic"
// (spec.md §4.D).
func (r *DriverRegistry) New(id string) (raster.Driver, bool) {
	if id == "" || id == "auto" {
		id = "generic"
	}
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// genericDriver is the auto-add driver: it streams whatever bytes the
// raster pipeline hands it straight to the device, with no vendor-specific
// command wrapping. It exists so Create-Printer's "auto" driver id always
// resolves to something usable, matching spec.md §4.D rather than rejecting
// every printer that doesn't name a concrete vendor driver.
type genericDriver struct {
	mu      sync.Mutex
	reasons []string
	dev     io.Writer
}

func newGenericDriver() *genericDriver {
	return &genericDriver{}
}

func (d *genericDriver) StartJob(j *job.Job, opts *raster.Options, dev io.Writer) bool {
	d.mu.Lock()
	d.dev = dev
	d.mu.Unlock()
	return true
}

func (d *genericDriver) EndJob(j *job.Job, opts *raster.Options) bool {
	return true
}

func (d *genericDriver) StartPage(j *job.Job, opts *raster.Options, pageNo int) bool {
	return true
}

func (d *genericDriver) EndPage(j *job.Job, opts *raster.Options, pageNo int) bool {
	return true
}

func (d *genericDriver) WriteRow(j *job.Job, opts *raster.Options, y int, row []byte) bool {
	_, err := d.dev.Write(row)
	return err == nil
}

func (d *genericDriver) Print(j *job.Job, opts *raster.Options, src io.Reader) bool {
	_, err := io.Copy(d.dev, src)
	return err == nil
}

func (d *genericDriver) Status() raster.StatusReasons {
	d.mu.Lock()
	defer d.mu.Unlock()
	return raster.StatusReasons{Reasons: append([]string(nil), d.reasons...)}
}

func (d *genericDriver) Capabilities() raster.Capabilities {
	return raster.Capabilities{
		Media:        []string{"na_letter_8.5x11in", "iso_a4_210x297mm"},
		Resolutions:  []raster.Resolution{{X: 300, Y: 300}},
		ColorModes:   []string{"bi-level", "monochrome"},
		Formats:      []string{"image/pwg-raster", "image/urf", "image/png"},
		NativeFormat: "image/pwg-raster",
		Sides:        []string{"one-sided"},
		Quality:      []string{"normal"},
	}
}

func (d *genericDriver) UserData() interface{} { return nil }
