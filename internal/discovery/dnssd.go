// Package discovery implements spec.md §4.B: DNS-SD browse/resolve for
// _pdl-datastream._tcp and SNMP broadcast discovery, plus the DNS-SD
// announcement helper used by internal/core (§4.H).
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const pdlDataStreamService = "_pdl-datastream._tcp"

// Device is one DNS-SD-discovered printing endpoint (spec.md §4.B).
type Device struct {
	Name     string
	Host     string
	Port     int
	DeviceID string
	URI      string
}

// mimeToCMD maps well-known MIME types to IEEE-1284 command-set keywords,
// used to synthesize a device ID when the TXT record has no CMD key
// (spec.md §4.B).
var mimeToCMD = map[string]string{
	"application/postscript": "PS",
	"application/vnd.hp-PCL": "PCL",
	"image/pwg-raster":       "PWGRaster",
	"image/urf":              "URF",
	"application/pdf":        "PDF",
}

// ListDNSSD browses _pdl-datastream._tcp for up to timeout (default 10s per
// spec.md §5), ending early once the discovered-device count is stable
// across a 250ms window (spec.md §4.B).
func ListDNSSD(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: new resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	found := map[string]Device{}
	stableSince := time.Time{}
	lastCount := -1

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				found[e.Instance] = entryToDevice(e)
				lastCount = -1 // reset stability window on new entry
			case <-ticker.C:
				if lastCount == len(found) && !stableSince.IsZero() && time.Since(stableSince) >= 250*time.Millisecond {
					return
				}
				if lastCount != len(found) {
					lastCount = len(found)
					stableSince = time.Now()
				}
			case <-browseCtx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(browseCtx, pdlDataStreamService, "local.", entries); err != nil {
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}
	<-done

	out := make([]Device, 0, len(found))
	for _, d := range found {
		out = append(out, d)
	}
	return out, nil
}

func entryToDevice(e *zeroconf.ServiceEntry) Device {
	txt := parseTXT(e.Text)
	host := e.HostName
	if len(e.AddrIPv4) > 0 {
		host = e.AddrIPv4[0].String()
	}
	d := Device{
		Name: e.Instance,
		Host: host,
		Port: e.Port,
	}
	d.DeviceID = synthesizeDeviceID(txt)
	d.URI = fmt.Sprintf("socket://%s:%d/", host, e.Port)
	return d
}

func parseTXT(records []string) map[string]string {
	m := make(map[string]string, len(records))
	for _, r := range records {
		kv := strings.SplitN(r, "=", 2)
		if len(kv) != 2 {
			continue
		}
		m[kv[0]] = kv[1]
	}
	return m
}

// synthesizeDeviceID builds "MFG:...;MDL:...;CMD:...;" from TXT keys
// usb_MFG, usb_MDL, usb_CMD, pdl, product, ty (spec.md §4.B). If CMD is
// absent it is derived from the pdl key's MIME types, with ESCPL2 appended
// when the manufacturer is EPSON.
func synthesizeDeviceID(txt map[string]string) string {
	mfg := txt["usb_MFG"]
	if mfg == "" {
		mfg = vendorFromProduct(txt["product"])
	}
	mdl := txt["usb_MDL"]
	if mdl == "" {
		mdl = txt["ty"]
	}
	if mdl == "" {
		mdl = txt["product"]
	}

	cmd := txt["usb_CMD"]
	if cmd == "" {
		cmd = deriveCMD(txt["pdl"])
		if strings.EqualFold(mfg, "EPSON") {
			if cmd != "" {
				cmd += ","
			}
			cmd += "ESCPL2"
		}
	}

	var sb strings.Builder
	if mfg != "" {
		fmt.Fprintf(&sb, "MFG:%s;", mfg)
	}
	if mdl != "" {
		fmt.Fprintf(&sb, "MDL:%s;", mdl)
	}
	if cmd != "" {
		fmt.Fprintf(&sb, "CMD:%s;", cmd)
	}
	return sb.String()
}

func vendorFromProduct(product string) string {
	fields := strings.Fields(product)
	if len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func deriveCMD(pdl string) string {
	var cmds []string
	for _, mime := range strings.Split(pdl, ",") {
		mime = strings.TrimSpace(mime)
		if cmd, ok := mimeToCMD[mime]; ok {
			cmds = append(cmds, cmd)
		}
	}
	return strings.Join(cmds, ",")
}

// Resolver implements device.Resolver using DNS-SD and SNMP discovery.
type Resolver struct{}

// ResolveDNSSD resolves "dnssd://instance._pdl-datastream._tcp.domain./"
// into a host:port pair by performing a DNS-SD lookup (spec.md §4.A).
func (Resolver) ResolveDNSSD(ctx context.Context, uri string) (string, error) {
	instance, service, domain, err := parseDNSSDURI(uri)
	if err != nil {
		return "", err
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", err
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 1)
	go resolver.Lookup(lookupCtx, instance, service, domain, entries)

	select {
	case e, ok := <-entries:
		if !ok || e == nil {
			return "", fmt.Errorf("discovery: dnssd lookup found nothing for %s", uri)
		}
		host := e.HostName
		if len(e.AddrIPv4) > 0 {
			host = e.AddrIPv4[0].String()
		}
		return net.JoinHostPort(host, strconv.Itoa(e.Port)), nil
	case <-lookupCtx.Done():
		return "", fmt.Errorf("discovery: dnssd lookup timed out for %s", uri)
	}
}

// ResolveSNMP resolves "snmp://host/" (or a bare host) by confirming the
// host answers SNMP discovery and returning its socket address (spec.md
// §4.A "snmp:// — resolves via SNMP discovery, then behaves as socket://").
func (Resolver) ResolveSNMP(ctx context.Context, uri string) (string, error) {
	host := strings.TrimPrefix(uri, "snmp://")
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		return "", fmt.Errorf("discovery: empty snmp host in %q", uri)
	}
	if !strings.Contains(host, ":") {
		host = net.JoinHostPort(host, "9100")
	}
	hostOnly, _, err := net.SplitHostPort(host)
	if err != nil {
		return "", fmt.Errorf("discovery: malformed snmp host in %q: %w", uri, err)
	}
	if _, ok := probeHost(ctx, hostOnly); !ok {
		return "", fmt.Errorf("discovery: %s did not answer snmp printer discovery", hostOnly)
	}
	return host, nil
}

func parseDNSSDURI(uri string) (instance, service, domain string, err error) {
	rest := strings.TrimPrefix(uri, "dnssd://")
	rest = strings.TrimSuffix(rest, "/")
	idx := strings.Index(rest, "._")
	if idx < 0 {
		return "", "", "", fmt.Errorf("discovery: malformed dnssd uri %q", uri)
	}
	instance = rest[:idx]
	remainder := rest[idx+1:] // "_pdl-datastream._tcp.local."
	remainder = strings.TrimSuffix(remainder, ".")
	parts := strings.SplitN(remainder, ".", 3)
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("discovery: malformed dnssd service/domain in %q", uri)
	}
	service = parts[0] + "." + parts[1]
	domain = parts[2] + "."
	return instance, service, domain, nil
}
