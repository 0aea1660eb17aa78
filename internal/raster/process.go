package raster

import (
	"errors"
	"fmt"
	"io"

	"github.com/michaelrsweet/pappl-sub004/internal/job"
)

// ErrUnsupportedFormat is returned by Process when the document's format is
// neither one of the built-in codecs nor an exact match for the driver's
// native format (spec.md §4.C); callers map it to client-error-document-
// format-error.
var ErrUnsupportedFormat = errors.New("raster: document format not supported")

// Process dispatches a spooled job file to the right ingest path by its
// document format (spec.md §4.C): image/pwg-raster and image/urf stream
// page-by-page straight to the driver, image/png goes through the
// scale/rotate/dither path, and an exact match with the driver's native
// format (printer.driver.native_format) is handed to the driver's raw Print
// callback unmodified. Any other format is rejected outright rather than
// silently forwarded.
func Process(j *job.Job, drv Driver, opts *Options, format string, dev io.Writer, r io.Reader) error {
	switch format {
	case "image/pwg-raster", "image/urf":
		return ProcessPWG(j, drv, opts, dev, r)
	case "image/png":
		return ProcessPNG(j, drv, opts, dev, r)
	case drv.Capabilities().NativeFormat:
		if !drv.StartJob(j, opts, dev) {
			return fmt.Errorf("raster: driver rejected start-job for job %d", j.ID)
		}
		ok := drv.Print(j, opts, r)
		if !drv.EndJob(j, opts) {
			return fmt.Errorf("raster: driver rejected end-job for job %d", j.ID)
		}
		if !ok {
			return fmt.Errorf("raster: driver print failed for job %d (format %s)", j.ID, format)
		}
		j.AddImpressions(1)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
