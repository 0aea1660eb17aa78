// Package core assembles the process-wide System container of spec.md §3
// and implements internal/ipp.Backend on top of it, wiring together
// internal/printer, internal/job, internal/subscription, internal/device,
// and internal/discovery exactly as the teacher's server wires its
// agent/storage/notification collaborators together in server/main.go.
package core

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/michaelrsweet/pappl-sub004/internal/authz"
	"github.com/michaelrsweet/pappl-sub004/internal/config"
	"github.com/michaelrsweet/pappl-sub004/internal/corelog"
	"github.com/michaelrsweet/pappl-sub004/internal/device"
	"github.com/michaelrsweet/pappl-sub004/internal/discovery"
	"github.com/michaelrsweet/pappl-sub004/internal/ipp"
	"github.com/michaelrsweet/pappl-sub004/internal/printer"
	"github.com/michaelrsweet/pappl-sub004/internal/subscription"
)

// System is the process-wide container of spec.md §3 "System": UUID,
// DNS-SD name, hostname, printer/subscription sets ordered by id,
// next-id counters, a global lock, and the save-state hook (here, direct
// calls into Store rather than a callback field, since Go lets every
// mutating method call it inline).
type System struct {
	UUID     string
	Hostname string
	DNSSDName string

	cfg config.Config
	log *corelog.Logger

	mu               sync.RWMutex
	printers         map[int]*printer.Printer
	printersOrder    []int
	defaultPrinterID int
	nextPrinterID    int
	nextJobID        int

	drivers  *DriverRegistry
	subs     *subscription.Engine
	store    *Store
	spool    *Spool
	resolver device.Resolver
	announcer *discovery.Announcer

	// SessionKey rotates daily and seeds CSRF token derivation (spec.md §3,
	// §4.G); StartedAt records when this System was created.
	SessionKey  [32]byte
	sessionDate string
	StartedAt   time.Time

	// shuttingDown is set once shutdown begins (Shutdown or
	// ShutdownAllPrinters); new Print-Job requests are refused once set
	// (spec.md §7 "Shutdown: in-flight jobs complete; new Print-Job refused
	// with server-error-service-unavailable").
	shuttingDown bool

	// authPolicy implements the §4.G authorization matrix for the HTTP
	// listener; LocalAuth is the stub AuthBackend behind it (named
	// interface per SPEC_FULL.md's PAM open-question decision). Exposed to
	// internal/httpserver via the AuthPolicy() method.
	authPolicy *authz.Policy
	LocalAuth  *authz.LocalBackend
}

var _ ipp.Backend = (*System)(nil)

// New builds a System from cfg, opening its persistence store and loading
// any printers saved from a prior run (spec.md §3 "created ... at startup
// from persisted state").
func New(cfg config.Config, log *corelog.Logger) (*System, error) {
	store, err := OpenStore(storePath(cfg), log)
	if err != nil {
		return nil, err
	}
	spool, err := NewSpool(cfg.SpoolDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	sysUUID, nextPrinterID, nextJobID, _, defaultPrinterID, passwordHash, err := store.LoadSystem(uuid.NewString)
	if err != nil {
		store.Close()
		return nil, err
	}

	localAuth := authz.NewLocalBackend()
	s := &System{
		UUID:             sysUUID,
		Hostname:         cfg.Hostname,
		DNSSDName:        cfg.DNSSDName,
		cfg:              cfg,
		log:              log,
		printers:         make(map[int]*printer.Printer),
		nextPrinterID:    nextPrinterID,
		nextJobID:        nextJobID,
		defaultPrinterID: defaultPrinterID,
		drivers:          NewDriverRegistry(),
		subs:             subscription.NewEngine(cfg.MaxEvents),
		store:            store,
		spool:            spool,
		resolver:         discovery.Resolver{},
		announcer:        discovery.NewAnnouncer(),
		StartedAt:        time.Now(),
		LocalAuth:        localAuth,
		authPolicy: &authz.Policy{
			AllowTLSOptional: cfg.AllowTLSOptional,
			AdminGroup:       cfg.AdminGroup,
			PrintGroup:       cfg.PrintGroup,
			PasswordHash:     passwordHash,
			Backend:          localAuth,
		},
	}
	s.rotateSessionKey()

	records, err := store.LoadPrinters()
	if err != nil {
		store.Close()
		return nil, err
	}
	for _, rec := range records {
		if err := s.restorePrinter(rec); err != nil {
			log.Warn("core: failed to restore printer", "name", rec.Name, "err", err.Error())
		}
	}

	return s, nil
}

func storePath(cfg config.Config) string {
	return cfg.SpoolDir + "/ippcore_state.db"
}

func (s *System) restorePrinter(rec PrinterRecord) error {
	drv, ok := s.drivers.New(rec.DriverID)
	if !ok {
		return fmt.Errorf("core: unknown driver %q for printer %q", rec.DriverID, rec.Name)
	}
	p := printer.New(printer.Config{
		ID:           rec.ID,
		Name:         rec.Name,
		ResourcePath: rec.ResourcePath,
		DeviceURI:    rec.DeviceURI,
		Driver:       drv,
		Spool:        s.spool,
		Resolver:     s.resolver,
		Log:          s.log,
	})
	p.ReadyMedia = rec.ReadyMedia
	p.SetDefault(rec.IsDefault)

	s.mu.Lock()
	s.printers[rec.ID] = p
	s.printersOrder = append(s.printersOrder, rec.ID)
	s.mu.Unlock()

	s.announcePrinter(p)
	return nil
}

// rotateSessionKey regenerates SessionKey if it hasn't been rotated today
// (spec.md §3 "session key rotated daily").
func (s *System) rotateSessionKey() {
	today := time.Now().Format("2006-01-02")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionDate == today {
		return
	}
	id := uuid.New()
	copy(s.SessionKey[:16], id[:])
	id2 := uuid.New()
	copy(s.SessionKey[16:], id2[:])
	s.sessionDate = today
}

// Shutdown sets the system shutdown flag, marks every printer Stopped via
// printer.Shutdown (which does not stop the printer's worker), and closes
// the persistence store (spec.md §3 "shutdown flag").
func (s *System) Shutdown(ctx context.Context) error {
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
	return s.store.Close()
}

// beginShutdown flips the system-wide shutdown flag so PrintJob starts
// refusing new work (spec.md §7 "Shutdown").
func (s *System) beginShutdown() {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()
}

// isShuttingDown reports whether shutdown has begun.
func (s *System) isShuttingDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shuttingDown
}

func (s *System) lookupPrinterByURI(uri string) (*printer.Printer, bool) {
	name := printerNameFromURI(uri)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.printers {
		if p.Name == name || p.ResourcePath == name {
			return p, true
		}
	}
	if name == "" && s.defaultPrinterID != 0 {
		if p, ok := s.printers[s.defaultPrinterID]; ok {
			return p, true
		}
	}
	return nil, false
}

// printerNameFromURI extracts the trailing path segment of an IPP printer
// URI (e.g. "ipp://host/ipp/print/office" -> "office"), matching the
// resource-path scheme of spec.md §3 "/ipp/print/<name>".
func printerNameFromURI(uri string) string {
	for i := len(uri) - 1; i >= 0; i-- {
		if uri[i] == '/' {
			return uri[i+1:]
		}
	}
	return uri
}

func (s *System) announcePrinter(p *printer.Printer) {
	if !s.cfg.DNSSDEnabled {
		return
	}
	key := fmt.Sprintf("printer-%d", p.ID)
	txt := []discovery.TXTRecord{
		{Key: "rp", Value: p.ResourcePath},
		{Key: "ty", Value: p.Name},
		{Key: "UUID", Value: s.UUID},
		{Key: "pdl", Value: "image/pwg-raster,image/urf,image/png"},
		{Key: "kind", Value: "document"},
	}
	if err := s.announcer.AnnouncePrinter(key, p.Name, portFromListeners(s.cfg.Listeners), txt); err != nil {
		s.log.Warn("core: dns-sd announce failed", "printer", p.Name, "err", err.Error())
	}
}

// portFromListeners extracts the port of the first configured listener,
// defaulting to 8000 (spec.md §3 listener set; used for DNS-SD TXT/SRV
// records).
func portFromListeners(listeners []string) int {
	for _, l := range listeners {
		u, err := url.Parse(l)
		if err != nil || u.Port() == "" {
			continue
		}
		var port int
		fmt.Sscanf(u.Port(), "%d", &port)
		if port > 0 {
			return port
		}
	}
	return 8000
}
