// Package raster implements spec.md §4.C's raster print pipeline: job-format
// dispatch, PWG-raster and PNG ingest, scaling/rotation/dithering, and the
// driver callback contract. It depends only on internal/job (and goipp for
// attribute parsing) so internal/printer can sit above both without a
// cycle.
package raster

import (
	"io"

	"github.com/michaelrsweet/pappl-sub004/internal/job"
)

// Resolution is a horizontal/vertical DPI pair.
type Resolution struct {
	X, Y int
}

// Capabilities is the union of driver-declared capability attributes
// (spec.md §4.D "the union of driver-declared capabilities").
type Capabilities struct {
	Media        []string
	Resolutions  []Resolution
	ColorModes   []string
	Formats      []string
	NativeFormat string
	Sides        []string
	Quality      []string
}

// Options carries the per-job rendering parameters resolved from job
// attributes, printer defaults, and driver defaults, in that priority order
// (spec.md §4.C "PNG path": "falling back to printer defaults then driver
// defaults").
type Options struct {
	Copies      int
	Media       string
	Orientation Orientation
	ColorMode   string
	Quality     string
	Resolution  Resolution
	Speed       int
	Darkness    int

	// Dither holds 16 threshold rows (spec.md §4.C "options.dither[y & 15]").
	Dither [16][]byte

	// ImageableLeft/Top/Width/Height is the imageable box in device pixels,
	// computed from media size and margins (spec.md §4.C).
	ImageableLeft, ImageableTop, ImageableWidth, ImageableHeight int
}

// Orientation is the requested page rotation (spec.md §4.C: "0°, 180°, 90°
// CCW, 90° CW").
type Orientation int

const (
	Orient0 Orientation = iota
	Orient180
	Orient90CCW
	Orient90CW
)

// Driver is the callback contract a concrete printer driver implements
// (spec.md §4.C "Driver callback contract"). Every method returns false to
// abort the job. UserData carries driver-private extension state, following
// the "small typed interface (vtable) with a user_data field" design note
// (spec.md §9) in place of the source's void-pointer callbacks.
type Driver interface {
	// StartJob binds dev, the device handle's writer, for the remainder of
	// the job; WriteRow/Print send pixel and raw bytes through it.
	StartJob(j *job.Job, opts *Options, dev io.Writer) bool
	EndJob(j *job.Job, opts *Options) bool
	StartPage(j *job.Job, opts *Options, pageNo int) bool
	EndPage(j *job.Job, opts *Options, pageNo int) bool
	WriteRow(j *job.Job, opts *Options, y int, row []byte) bool

	// Print consumes the spooled file in one call for the raw path
	// (spec.md §4.C "raw path").
	Print(j *job.Job, opts *Options, src io.Reader) bool

	// Status pushes a state refresh; may be called from the printer
	// worker (spec.md §4.C).
	Status() StatusReasons

	Capabilities() Capabilities
	UserData() interface{}
}

// StatusReasons is the minimal shape a driver reports back to the printer
// worker after a status() callback.
type StatusReasons struct {
	Reasons []string
}
