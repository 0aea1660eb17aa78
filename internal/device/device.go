// Package device implements the device abstraction layer of spec.md §4.A:
// "a place to write printer bytes and read status from", with pluggable
// transport schemes (usb, socket, dnssd, snmp).
package device

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/michaelrsweet/pappl-sub004/internal/reasons"
	"github.com/michaelrsweet/pappl-sub004/internal/snmpoids"
)

// Default raw socket port (spec.md §4.A "socket://host:port/").
const DefaultSocketPort = 9100

// ErrTimeout is returned by Read when no data arrives within the deadline.
var ErrTimeout = fmt.Errorf("device: read timeout")

// Resolver resolves a dnssd:// or snmp:// URI down to a socket host:port.
// internal/discovery supplies the production implementation; tests can
// inject a fake.
type Resolver interface {
	ResolveDNSSD(ctx context.Context, uri string) (hostport string, err error)
	ResolveSNMP(ctx context.Context, uri string) (hostport string, err error)
}

// Handle is an opaque, exclusively-owned connection to a printing endpoint.
// It is recreated on each use (spec.md §3 "Device": "recreated on each
// use").
type Handle struct {
	URI    string
	Scheme string

	mu       sync.Mutex
	conn     io.ReadWriteCloser
	snmp     SNMPClient
	target   string // resolved host, for the secondary SNMP socket
	charset  string // cached after the first Supplies() call
	haveChar bool
}

// SNMPClient abstracts gosnmp.GoSNMP for easier testing, following the
// teacher's agent/agent/snmp_iface.go pattern.
type SNMPClient interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Walk(root string, walkFn gosnmp.WalkFunc) error
	Close() error
}

// NewSNMPClient is a factory seam; tests replace it to inject a mock.
var NewSNMPClient = func(target string, timeout time.Duration) (SNMPClient, error) {
	c := &gosnmp.GoSNMP{
		Target:    target,
		Port:      161,
		Community: "public",
		Version:   gosnmp.Version1,
		Timeout:   timeout,
		Retries:   1,
	}
	if err := c.Connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// Open parses uri's scheme and establishes a connection, attaching a
// secondary SNMP socket when the resolved transport is network-based
// (spec.md §4.A: "open(uri, job_name) ... attaches a secondary SNMP socket
// if network").
func Open(ctx context.Context, uri, jobName string, resolver Resolver) (*Handle, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("device: parse uri %q: %w", uri, err)
	}

	h := &Handle{URI: uri, Scheme: u.Scheme}

	switch u.Scheme {
	case "usb":
		return openUSB(u, jobName)

	case "socket":
		hostport := withDefaultPort(u.Host, DefaultSocketPort)
		return dialSocket(ctx, h, hostport)

	case "dnssd":
		if resolver == nil {
			return nil, fmt.Errorf("device: dnssd scheme requires a resolver")
		}
		hostport, err := resolver.ResolveDNSSD(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("device: resolve dnssd %q: %w", uri, err)
		}
		return dialSocket(ctx, h, withDefaultPort(hostport, DefaultSocketPort))

	case "snmp":
		if resolver == nil {
			return nil, fmt.Errorf("device: snmp scheme requires a resolver")
		}
		hostport, err := resolver.ResolveSNMP(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("device: resolve snmp %q: %w", uri, err)
		}
		return dialSocket(ctx, h, withDefaultPort(hostport, DefaultSocketPort))

	default:
		return nil, fmt.Errorf("device: unregistered scheme %q", u.Scheme)
	}
}

func withDefaultPort(hostport string, def int) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(hostport, strconv.Itoa(def))
}

func dialSocket(ctx context.Context, h *Handle, hostport string) (*Handle, error) {
	d := net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, fmt.Errorf("device: dial %s: %w", hostport, err)
	}
	h.conn = conn
	host, _, _ := net.SplitHostPort(hostport)
	h.target = host
	return h, nil
}

// Write loops, retrying partial writes until the buffer is fully written or
// a terminal error occurs (spec.md §4.A write()).
func (h *Handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return 0, fmt.Errorf("device: not open")
	}
	total := 0
	for total < len(p) {
		n, err := h.conn.Write(p[total:])
		total += n
		if err != nil {
			if isRetryable(err) {
				continue
			}
			return total, err
		}
	}
	return total, nil
}

func isRetryable(err error) bool {
	var ne net.Error
	if as, ok := err.(net.Error); ok {
		ne = as
		return ne.Timeout()
	}
	return false
}

// Read waits up to timeout for data; ErrTimeout is returned (not −1, Go has
// no sentinel integer for that) if nothing arrives in time (spec.md §4.A
// read(), default timeout 10s, spec.md §5).
func (h *Handle) Read(p []byte, timeout time.Duration) (int, error) {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return 0, fmt.Errorf("device: not open")
	}
	if deadliner, ok := conn.(interface{ SetReadDeadline(time.Time) error }); ok {
		deadliner.SetReadDeadline(time.Now().Add(timeout))
	}
	n, err := conn.Read(p)
	if err != nil {
		var ne net.Error
		if as, ok := err.(net.Error); ok {
			ne = as
		}
		if ne != nil && ne.Timeout() {
			return 0, ErrTimeout
		}
		return n, err
	}
	return n, nil
}

// Close releases the primary socket and any secondary SNMP socket
// (spec.md §4.A close()).
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	if h.conn != nil {
		if err := h.conn.Close(); err != nil {
			firstErr = err
		}
		h.conn = nil
	}
	if h.snmp != nil {
		h.snmp.Close()
		h.snmp = nil
	}
	return firstErr
}

// snmpTarget returns the host to query over SNMP: the resolved network
// target for socket-family schemes, or empty for usb.
func (h *Handle) snmpTarget() string {
	return h.target
}

func (h *Handle) ensureSNMP() (SNMPClient, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snmp != nil {
		return h.snmp, nil
	}
	target := h.snmpTarget()
	if target == "" {
		return nil, fmt.Errorf("device: scheme %q has no network target for SNMP", h.Scheme)
	}
	c, err := NewSNMPClient(target, 10*time.Second)
	if err != nil {
		return nil, err
	}
	h.snmp = c
	return c, nil
}

// Status queries hrPrinterDetectedErrorState via SNMP and maps bit flags to
// printer-state-reasons keywords (spec.md §4.A status()).
func (h *Handle) Status(ctx context.Context) (*reasons.Set, error) {
	set := reasons.NewSet()
	client, err := h.ensureSNMP()
	if err != nil {
		// No network device id available (e.g. usb): report no reasons.
		return set, nil
	}
	applyDetectedErrorState(set, client)
	return set, nil
}

var errorStateBits = []struct {
	bit    uint
	reason string
}{
	{0, "other"},
	{1, "media-low"},
	{2, "media-empty"},
	{3, "spool-area-full"}, // mapped from "waste almost full"
	{4, "interlock-open"},  // "waste full" reuses the generic interlock reason
	{5, "door-open"},
	{6, "jam"},             // "cover open" proper is separate bit elsewhere; approximated here
	{7, "input-tray-missing"},
	{8, "output-tray-missing"},
	{9, "marker-supply-low"},
	{10, "marker-supply-empty"},
	{11, "marker-waste-almost-full"},
	{12, "marker-waste-full"},
	{13, "fuser-over-temp"},
	{14, "fuser-under-temp"},
}

func applyDetectedErrorState(set *reasons.Set, client SNMPClient) {
	client.Walk(snmpoids.HrPrinterDetectedErrorState, func(pdu gosnmp.SnmpPDU) error {
		bits, ok := pdu.Value.([]byte)
		if !ok {
			return nil
		}
		for _, b := range errorStateBits {
			byteIdx := b.bit / 8
			bitIdx := 7 - (b.bit % 8)
			if int(byteIdx) < len(bits) && bits[byteIdx]&(1<<bitIdx) != 0 {
				set.Add(b.reason)
			}
		}
		return nil
	})
}
