package printer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelrsweet/pappl-sub004/internal/corelog"
	"github.com/michaelrsweet/pappl-sub004/internal/device"
	"github.com/michaelrsweet/pappl-sub004/internal/job"
	"github.com/michaelrsweet/pappl-sub004/internal/raster"
)

type fakeDriver struct {
	printed []int
}

func (d *fakeDriver) StartJob(*job.Job, *raster.Options, io.Writer) bool    { return true }
func (d *fakeDriver) EndJob(*job.Job, *raster.Options) bool                 { return true }
func (d *fakeDriver) StartPage(*job.Job, *raster.Options, int) bool         { return true }
func (d *fakeDriver) EndPage(*job.Job, *raster.Options, int) bool           { return true }
func (d *fakeDriver) WriteRow(*job.Job, *raster.Options, int, []byte) bool  { return true }
func (d *fakeDriver) Print(j *job.Job, _ *raster.Options, _ io.Reader) bool {
	d.printed = append(d.printed, j.ID)
	return true
}
func (d *fakeDriver) Status() raster.StatusReasons { return raster.StatusReasons{} }
func (d *fakeDriver) Capabilities() raster.Capabilities {
	return raster.Capabilities{NativeFormat: "application/octet-stream"}
}
func (d *fakeDriver) UserData() interface{}             { return nil }

type memSpool struct{}

func (memSpool) Open(j *job.Job) (ReadCloserSize, error) {
	return io.NopCloser(bytes.NewReader([]byte("raw data"))), nil
}

// fakeDeviceHandle is an in-memory stand-in so worker-loop tests never dial
// a real socket.
type fakeDeviceHandle struct {
	bytes.Buffer
}

func (*fakeDeviceHandle) Close() error { return nil }

func fakeOpenDevice(context.Context, string, string, device.Resolver) (DeviceHandle, error) {
	return &fakeDeviceHandle{}, nil
}

func newTestPrinter(t *testing.T) *Printer {
	t.Helper()
	log := corelog.New(corelog.INFO, t.TempDir(), "test", 16)
	return New(Config{
		ID:           1,
		Name:         "test-printer",
		ResourcePath: "/ipp/print/test-printer",
		DeviceURI:    "socket://127.0.0.1:19100/",
		Driver:       &fakeDriver{},
		Spool:        memSpool{},
		Log:          log,
		OpenDevice:   fakeOpenDevice,
	})
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("My_Printer-1"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("1leading-digit"))
	assert.Error(t, ValidateName("has space"))
}

func TestPrinterFIFOOrdering(t *testing.T) {
	p := newTestPrinter(t)
	defer p.MarkDeleted()

	var jobs []*job.Job
	for i := 1; i <= 5; i++ {
		j := job.New(i, p.ID, "doc.raw", "application/octet-stream")
		require.NoError(t, j.MarkDataReceived())
		jobs = append(jobs, j)
		require.NoError(t, p.Submit(j))
	}

	require.Eventually(t, func() bool {
		_, completed := p.Jobs()
		return len(completed) == 5
	}, 2*time.Second, 10*time.Millisecond)

	_, completed := p.Jobs()
	for i, j := range completed {
		assert.Equal(t, jobs[i].ID, j.ID, "jobs must complete in submission order")
		assert.Equal(t, job.Completed, j.State())
	}
}

func TestPrinterCancelBeforeProcessing(t *testing.T) {
	p := newTestPrinter(t)
	defer p.MarkDeleted()

	j := job.New(1, p.ID, "doc.raw", "application/octet-stream")
	require.NoError(t, j.MarkDataReceived())
	j.SetCanceled()
	require.NoError(t, p.Submit(j))

	require.Eventually(t, func() bool {
		return j.State().IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, job.Canceled, j.State())
}

// TestPrinterRetriesDeviceOpenAndRecovers verifies spec.md §4.C step 2/§7
// "Device unavailable": a device that fails to open does not abort the
// job, it moves the printer to Stopped and retries until the device comes
// back, after which the job completes normally.
func TestPrinterRetriesDeviceOpenAndRecovers(t *testing.T) {
	orig := deviceRetryInterval
	deviceRetryInterval = 5 * time.Millisecond
	defer func() { deviceRetryInterval = orig }()

	log := corelog.New(corelog.INFO, t.TempDir(), "test", 16)
	var attempts int32
	flakyOpen := func(ctx context.Context, uri, jobName string, resolver device.Resolver) (DeviceHandle, error) {
		if atomic.AddInt32(&attempts, 1) < 4 {
			return nil, fmt.Errorf("device unavailable")
		}
		return &fakeDeviceHandle{}, nil
	}

	p := New(Config{
		ID:           2,
		Name:         "retry-printer",
		ResourcePath: "/ipp/print/retry-printer",
		DeviceURI:    "socket://127.0.0.1:19101/",
		Driver:       &fakeDriver{},
		Spool:        memSpool{},
		Log:          log,
		OpenDevice:   flakyOpen,
	})
	defer p.MarkDeleted()

	j := job.New(1, p.ID, "doc.raw", "application/octet-stream")
	require.NoError(t, j.MarkDataReceived())
	require.NoError(t, p.Submit(j))

	require.Eventually(t, func() bool {
		return p.State() == Stopped
	}, time.Second, time.Millisecond, "printer never went Stopped while device was unavailable")

	require.Eventually(t, func() bool {
		return j.State().IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, job.Completed, j.State(), "device recovery must not abort the job")
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(4))
}

// TestPrinterAbandonsJobOnDeleteDuringRetry verifies that deleting a printer
// while a job is stuck retrying an unavailable device still finalizes that
// job instead of leaving it Pending forever.
func TestPrinterAbandonsJobOnDeleteDuringRetry(t *testing.T) {
	orig := deviceRetryInterval
	deviceRetryInterval = 5 * time.Millisecond
	defer func() { deviceRetryInterval = orig }()

	log := corelog.New(corelog.INFO, t.TempDir(), "test", 16)
	alwaysFails := func(ctx context.Context, uri, jobName string, resolver device.Resolver) (DeviceHandle, error) {
		return nil, fmt.Errorf("device unavailable")
	}

	p := New(Config{
		ID:           3,
		Name:         "never-recovers",
		ResourcePath: "/ipp/print/never-recovers",
		DeviceURI:    "socket://127.0.0.1:19102/",
		Driver:       &fakeDriver{},
		Spool:        memSpool{},
		Log:          log,
		OpenDevice:   alwaysFails,
	})

	j := job.New(1, p.ID, "doc.raw", "application/octet-stream")
	require.NoError(t, j.MarkDataReceived())
	require.NoError(t, p.Submit(j))

	require.Eventually(t, func() bool {
		return p.State() == Stopped
	}, time.Second, time.Millisecond)

	p.MarkDeleted()

	require.Eventually(t, func() bool {
		return j.State().IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, job.Aborted, j.State())
}

func TestPrinterRejectsSubmitAfterDelete(t *testing.T) {
	p := newTestPrinter(t)
	p.MarkDeleted()

	j := job.New(1, p.ID, "doc.raw", "application/octet-stream")
	err := p.Submit(j)
	assert.Error(t, err)
}
