package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"
)

// Announcer publishes DNS-SD service records for the system and its
// printers (spec.md §4.H). Each Register call returns a *zeroconf.Server
// that must be shut down to retract the record; Announcer tracks them by
// key so re-announcing (e.g. on rename) first retracts the old record.
type Announcer struct {
	servers map[string][]*zeroconf.Server
}

// NewAnnouncer creates an empty Announcer.
func NewAnnouncer() *Announcer {
	return &Announcer{servers: make(map[string][]*zeroconf.Server)}
}

// TXTRecord is a DNS-SD TXT key/value pair, kept ordered as spec.md §4.H
// lists them ("rp", "ty", "product", "note", "usb_MFG", "usb_MDL", "UUID",
// "TLS", "Color", "Duplex", "pdl", "kind").
type TXTRecord struct {
	Key, Value string
}

func txtStrings(records []TXTRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, fmt.Sprintf("%s=%s", r.Key, r.Value))
	}
	return out
}

// AnnounceSystem registers _ipp._tcp and _ipp-system._tcp for the system
// container itself (spec.md §4.H).
func (a *Announcer) AnnounceSystem(key, name string, port int, txt []TXTRecord) error {
	return a.announce(key, name, port, txt, []string{"_ipp._tcp", "_ipp-system._tcp"})
}

// AnnouncePrinter registers _ipp._tcp, _pdl-datastream._tcp, and
// _printer._tcp for one printer (spec.md §4.H).
func (a *Announcer) AnnouncePrinter(key, name string, port int, txt []TXTRecord) error {
	return a.announce(key, name, port, txt, []string{"_ipp._tcp", pdlDataStreamService, "_printer._tcp"})
}

func (a *Announcer) announce(key, name string, port int, txt []TXTRecord, services []string) error {
	a.Retract(key)

	strs := txtStrings(txt)
	var servers []*zeroconf.Server
	for _, svc := range services {
		s, err := zeroconf.Register(name, svc, "local.", port, strs, nil)
		if err != nil {
			for _, prior := range servers {
				prior.Shutdown()
			}
			return fmt.Errorf("discovery: announce %s %s: %w", svc, name, err)
		}
		servers = append(servers, s)
	}
	a.servers[key] = servers
	return nil
}

// Retract shuts down every record registered under key, if any.
func (a *Announcer) Retract(key string) {
	for _, s := range a.servers[key] {
		s.Shutdown()
	}
	delete(a.servers, key)
}

// Shutdown retracts every announced record.
func (a *Announcer) Shutdown() {
	for key := range a.servers {
		a.Retract(key)
	}
}
