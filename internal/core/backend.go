package core

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alexpevzner/goipp"

	"github.com/michaelrsweet/pappl-sub004/internal/authz"
	"github.com/michaelrsweet/pappl-sub004/internal/ipp"
	"github.com/michaelrsweet/pappl-sub004/internal/job"
	"github.com/michaelrsweet/pappl-sub004/internal/printer"
	"github.com/michaelrsweet/pappl-sub004/internal/raster"
	"github.com/michaelrsweet/pappl-sub004/internal/subscription"
)

var registeredDeviceSchemes = map[string]bool{
	"usb": true, "socket": true, "dnssd": true, "snmp": true,
}

// PrintJob implements ipp.Backend (spec.md §4.F Print-Job): allocate a job
// id, spool the document body, submit to the named printer's queue.
func (s *System) PrintJob(ctx context.Context, req ipp.JobSubmission) (ipp.JobResult, error) {
	if s.isShuttingDown() {
		return ipp.JobResult{}, ipp.ErrServiceUnavailable
	}

	p, ok := s.lookupPrinterByURI(req.PrinterURI)
	if !ok {
		return ipp.JobResult{}, fmt.Errorf("core: printer not found: %s", req.PrinterURI)
	}
	if err := validateJobFormat(p, req.Format); err != nil {
		return ipp.JobResult{}, err
	}

	id := s.allocJobID()
	f, path, err := s.spool.Create(id)
	if err != nil {
		return ipp.JobResult{}, err
	}
	if _, err := f.ReadFrom(req.Document); err != nil {
		f.Close()
		return ipp.JobResult{}, fmt.Errorf("core: spool job %d: %w", id, err)
	}
	f.Close()

	j := job.New(id, p.ID, path, req.Format)
	j.Attrs = req.JobAttrs
	if err := j.MarkDataReceived(); err != nil {
		return ipp.JobResult{}, err
	}
	if err := p.Submit(j); err != nil {
		return ipp.JobResult{}, err
	}

	s.subs.Publish(subscription.OwnerPrinter, p.ID, "job-created", map[string]interface{}{"job-id": id})
	return jobResultOf(j, p), nil
}

// ValidateJob implements ipp.Backend (spec.md §4.F Validate-Job): the same
// checks as Print-Job without spooling or queueing.
func (s *System) ValidateJob(ctx context.Context, req ipp.JobSubmission) error {
	p, ok := s.lookupPrinterByURI(req.PrinterURI)
	if !ok {
		return fmt.Errorf("core: printer not found: %s", req.PrinterURI)
	}
	return validateJobFormat(p, req.Format)
}

// validateJobFormat is the Get-Printer-Supported-Values-style negotiation
// check shared by Print-Job and Validate-Job (spec.md §4.C): a submitted
// document-format must be one of the built-in raster codecs or an exact
// match for one of the printer's advertised formats, or the job is rejected
// with document-format-error rather than silently handed to the driver.
func validateJobFormat(p *printer.Printer, format string) error {
	switch format {
	// "" (Validate-Job omitted document-format) and the RFC 8011 default
	// value both mean "let the printer pick", so neither is rejected here.
	case "image/pwg-raster", "image/urf", "image/png", "", "application/octet-stream":
		return nil
	}
	caps := p.Snapshot().Capabilities
	if format == caps.NativeFormat {
		return nil
	}
	for _, f := range caps.Formats {
		if f == format {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", raster.ErrUnsupportedFormat, format)
}

// CancelJob implements ipp.Backend (spec.md §4.F Cancel-Job): idempotent,
// sets the advisory cancel flag; the terminal transition happens in the
// printer worker.
func (s *System) CancelJob(ctx context.Context, printerURI string, jobID int) error {
	p, j, ok := s.findJob(printerURI, jobID)
	if !ok {
		return fmt.Errorf("core: job %d not found", jobID)
	}
	j.SetCanceled()
	s.subs.Publish(subscription.OwnerPrinter, p.ID, "job-state-changed", map[string]interface{}{"job-id": jobID, "job-state": "canceled"})
	return nil
}

func (s *System) GetJobAttributes(ctx context.Context, printerURI string, jobID int) (ipp.JobResult, error) {
	p, j, ok := s.findJob(printerURI, jobID)
	if !ok {
		return ipp.JobResult{}, fmt.Errorf("core: job %d not found", jobID)
	}
	return jobResultOf(j, p), nil
}

func (s *System) GetJobs(ctx context.Context, printerURI string, whichJobs string, myJobsOnly bool, limit int) ([]ipp.JobResult, error) {
	p, ok := s.lookupPrinterByURI(printerURI)
	if !ok {
		return nil, fmt.Errorf("core: printer not found: %s", printerURI)
	}
	active, completed := p.Jobs()

	var all []*job.Job
	switch whichJobs {
	case "completed":
		all = completed
	case "all":
		all = append(append([]*job.Job(nil), active...), completed...)
	default: // "not-completed"
		all = active
	}

	out := make([]ipp.JobResult, 0, len(all))
	for _, j := range all {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, jobResultOf(j, p))
	}
	return out, nil
}

func (s *System) findJob(printerURI string, jobID int) (*printer.Printer, *job.Job, bool) {
	p, ok := s.lookupPrinterByURI(printerURI)
	if !ok {
		return nil, nil, false
	}
	active, completed := p.Jobs()
	for _, j := range active {
		if j.ID == jobID {
			return p, j, true
		}
	}
	for _, j := range completed {
		if j.ID == jobID {
			return p, j, true
		}
	}
	if proc := p.ProcessingJob(); proc != nil && proc.ID == jobID {
		return p, proc, true
	}
	return nil, nil, false
}

func jobResultOf(j *job.Job, p *printer.Printer) ipp.JobResult {
	return ipp.JobResult{
		ID:           j.ID,
		PrinterURI:   p.ResourcePath,
		State:        jobStateEnum(j.State()),
		StateReasons: j.Reasons().Values(),
		Name:         "",
		Created:      j.Created,
		Impressions:  j.CompletedImpressions(),
		Message:      j.Message(),
	}
}

// jobStateEnum maps job.State to the IPP job-state enum values of RFC 8011
// §5.3.8 (3 pending, 4 held, 5 processing, 6 stopped, 7 canceled, 8
// aborted, 9 completed).
func jobStateEnum(st job.State) int {
	switch st {
	case job.Pending:
		return 3
	case job.Held:
		return 4
	case job.Processing:
		return 5
	case job.Stopped:
		return 6
	case job.Canceled:
		return 7
	case job.Aborted:
		return 8
	case job.Completed:
		return 9
	default:
		return 3
	}
}

// CreatePrinter implements ipp.Backend (spec.md §4.D Create-Printer):
// validates name/device-uri/driver, assigns a monotonic id, and makes the
// first successfully created printer the system default.
func (s *System) CreatePrinter(ctx context.Context, req ipp.PrinterCreateRequest) (ipp.PrinterResult, error) {
	if err := printer.ValidateName(req.Name); err != nil {
		return ipp.PrinterResult{}, err
	}

	s.mu.RLock()
	for _, p := range s.printers {
		if p.Name == req.Name {
			s.mu.RUnlock()
			return ipp.PrinterResult{}, fmt.Errorf("core: printer name %q already in use", req.Name)
		}
	}
	s.mu.RUnlock()

	u, err := url.Parse(req.DeviceURI)
	if err != nil || !registeredDeviceSchemes[u.Scheme] {
		return ipp.PrinterResult{}, fmt.Errorf("core: unregistered device uri scheme in %q", req.DeviceURI)
	}

	drv, ok := s.drivers.New(req.DriverID)
	if !ok {
		return ipp.PrinterResult{}, fmt.Errorf("core: unknown driver %q", req.DriverID)
	}

	id := s.allocPrinterID()
	resourcePath := "/ipp/print/" + req.Name

	p := printer.New(printer.Config{
		ID:           id,
		Name:         req.Name,
		ResourcePath: resourcePath,
		DeviceURI:    req.DeviceURI,
		Driver:       drv,
		Spool:        s.spool,
		Resolver:     s.resolver,
		Log:          s.log,
	})

	s.mu.Lock()
	isFirst := len(s.printers) == 0
	s.printers[id] = p
	s.printersOrder = append(s.printersOrder, id)
	if isFirst {
		s.defaultPrinterID = id
		p.SetDefault(true)
	}
	s.mu.Unlock()

	s.persistPrinter(p, req.DriverID)
	s.announcePrinter(p)
	s.subs.Publish(subscription.OwnerSystem, 0, "printer-state-changed", map[string]interface{}{"printer-id": id})

	return printerResultOf(p), nil
}

// DeletePrinter implements ipp.Backend (spec.md §4.D Delete-Printer): sets
// the tombstone; the printer is reaped once its queue drains.
func (s *System) DeletePrinter(ctx context.Context, printerURI string) error {
	p, ok := s.lookupPrinterByURI(printerURI)
	if !ok {
		return fmt.Errorf("core: printer not found: %s", printerURI)
	}
	p.MarkDeleted()
	s.store.DeletePrinter(p.ID)
	s.announcer.Retract(fmt.Sprintf("printer-%d", p.ID))
	return nil
}

func (s *System) SetPrinterAttributes(ctx context.Context, printerURI string, attrs goipp.Attributes) error {
	p, ok := s.lookupPrinterByURI(printerURI)
	if !ok {
		return fmt.Errorf("core: printer not found: %s", printerURI)
	}
	for _, a := range attrs {
		if a.Name == "printer-ready-media" {
			media := make([]string, 0, len(a.Values))
			for _, v := range a.Values {
				if sv, ok := v.V.(goipp.String); ok {
					media = append(media, string(sv))
				}
			}
			p.ReadyMedia = media
		}
	}
	s.persistPrinter(p, "")
	return nil
}

func (s *System) GetPrinterAttributes(ctx context.Context, printerURI string, requested []string) (ipp.PrinterResult, error) {
	p, ok := s.lookupPrinterByURI(printerURI)
	if !ok {
		return ipp.PrinterResult{}, fmt.Errorf("core: printer not found: %s", printerURI)
	}
	return printerResultOf(p), nil
}

func (s *System) GetPrinters(ctx context.Context) ([]ipp.PrinterResult, error) {
	s.mu.RLock()
	ids := append([]int(nil), s.printersOrder...)
	printers := make([]*printer.Printer, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.printers[id]; ok {
			printers = append(printers, p)
		}
	}
	s.mu.RUnlock()

	out := make([]ipp.PrinterResult, 0, len(printers))
	for _, p := range printers {
		out = append(out, printerResultOf(p))
	}
	return out, nil
}

func printerResultOf(p *printer.Printer) ipp.PrinterResult {
	snap := p.Snapshot()
	return ipp.PrinterResult{
		URI:          snap.ResourcePath,
		Name:         snap.Name,
		State:        printerStateEnum(snap.State),
		StateReasons: snap.Reasons,
		IsAccepting:  !p.IsDeleted(),
		IsDefault:    snap.IsDefault,
		DeviceURI:    snap.DeviceURI,
	}
}

// printerStateEnum maps printer.State to the IPP printer-state enum values
// of RFC 8011 §5.4.15 (3 idle, 4 processing, 5 stopped).
func printerStateEnum(st printer.State) int {
	switch st {
	case printer.Idle:
		return 3
	case printer.Processing:
		return 4
	case printer.Stopped:
		return 5
	default:
		return 3
	}
}

func (s *System) persistPrinter(p *printer.Printer, driverID string) {
	snap := p.Snapshot()
	rec := PrinterRecord{
		ID:           snap.ID,
		Name:         snap.Name,
		ResourcePath: snap.ResourcePath,
		DeviceURI:    snap.DeviceURI,
		DriverID:     driverID,
		IsDefault:    snap.IsDefault,
		ReadyMedia:   snap.ReadyMedia,
	}
	if err := s.store.SavePrinter(rec); err != nil {
		s.log.Warn("core: persist printer failed", "printer", snap.Name, "err", err.Error())
	}
	s.saveCounters()
}

func (s *System) saveCounters() {
	s.mu.RLock()
	next, nextJ, def := s.nextPrinterID, s.nextJobID, s.defaultPrinterID
	s.mu.RUnlock()
	if err := s.store.SaveSystemCounters(next, nextJ, 1, def); err != nil {
		s.log.Warn("core: persist counters failed", "err", err.Error())
	}
}

func (s *System) allocPrinterID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextPrinterID
	s.nextPrinterID++
	return id
}

func (s *System) allocJobID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextJobID
	s.nextJobID++
	return id
}

// GetSystemAttributes implements ipp.Backend (spec.md §4.F): the
// system-wide description attributes (uuid, dns-sd name, hostname).
func (s *System) GetSystemAttributes(ctx context.Context, requested []string) (goipp.Attributes, error) {
	var attrs goipp.Attributes
	attrs.Add(makeAttrPublic("system-uuid", goipp.TagURI, goipp.String("urn:uuid:"+s.UUID)))
	attrs.Add(makeAttrPublic("system-name", goipp.TagName, goipp.String(s.DNSSDName)))
	return attrs, nil
}

func (s *System) SetSystemAttributes(ctx context.Context, attrs goipp.Attributes) error {
	for _, a := range attrs {
		if a.Name == "system-name" && len(a.Values) > 0 {
			if sv, ok := a.Values[0].V.(goipp.String); ok {
				s.mu.Lock()
				s.DNSSDName = string(sv)
				s.mu.Unlock()
			}
		}
	}
	return nil
}

// SetPassword validates and hashes a new self-managed admin password,
// persists it, and updates the live authorization policy (spec.md §4.G
// "Password rules (when self-managed)").
func (s *System) SetPassword(pw string) error {
	hash, err := authz.HashPassword(pw)
	if err != nil {
		return err
	}
	if err := s.store.SavePasswordHash(hash); err != nil {
		return err
	}
	s.mu.Lock()
	s.authPolicy.PasswordHash = hash
	s.mu.Unlock()
	return nil
}

// ShutdownAllPrinters implements ipp.Backend: marks every printer Stopped
// via printer.Shutdown (which does not stop the printer's worker) without
// deleting its state, and flips the system-wide shutdown flag so
// new Print-Job requests are refused from this point on (spec.md §3
// "shutdown flag", §7 "Shutdown").
func (s *System) ShutdownAllPrinters(ctx context.Context) error {
	s.beginShutdown()

	s.mu.RLock()
	printers := make([]*printer.Printer, 0, len(s.printers))
	for _, p := range s.printers {
		printers = append(printers, p)
	}
	s.mu.RUnlock()
	for _, p := range printers {
		p.Shutdown()
	}
	return nil
}

// SetEventTap installs (or, with nil, removes) a callback invoked for every
// published subscription event, narrowed to the shape internal/httpserver
// needs so that package doesn't have to import internal/subscription
// (mirrors AuthPolicy/CSRFToken's own narrowing). Backs the admin UI's live
// "/events" broadcast.
func (s *System) SetEventTap(fn func(ownerKind string, ownerID int, kind string, attrs map[string]interface{})) {
	if fn == nil {
		s.subs.SetTap(nil)
		return
	}
	s.subs.SetTap(func(ownerKind subscription.OwnerKind, ownerID int, kind string, attrs map[string]interface{}) {
		fn(ownerKind.String(), ownerID, kind, attrs)
	})
}

// AuthPolicy exposes the live authorization policy to internal/httpserver
// (spec.md §4.G), satisfying httpserver.System.
func (s *System) AuthPolicy() *authz.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authPolicy
}

// SessionHostname returns the hostname the CSRF token is bound to.
func (s *System) SessionHostname() string {
	return s.Hostname
}

// CSRFToken derives the form-POST CSRF token for hostname from the current
// session key (spec.md §4.G, §3 "session key rotated daily"). Rotation is
// checked on every call rather than only at startup, so a token minted
// before a day boundary stops validating once that boundary passes.
func (s *System) CSRFToken(hostname string) string {
	s.rotateSessionKey()
	s.mu.RLock()
	key := s.SessionKey
	s.mu.RUnlock()
	return authz.CSRFToken(key, hostname)
}

func makeAttrPublic(name string, tag goipp.Tag, val goipp.Value) goipp.Attribute {
	attr := goipp.Attribute{Name: name}
	attr.AddValue(tag, val)
	return attr
}
