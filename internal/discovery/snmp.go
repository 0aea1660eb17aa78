package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/michaelrsweet/pappl-sub004/internal/device"
	"github.com/michaelrsweet/pappl-sub004/internal/snmpoids"
)

// SNMPDevice is one SNMP-discovered printing endpoint (spec.md §4.B).
type SNMPDevice struct {
	Host     string
	Port     int
	SysName  string
	DeviceID string
	URI      string
}

// skippedPorts are never offered as a printing port (spec.md §4.B:
// "Skip ports 515 (LPD) and 631 (IPP)").
var skippedPorts = map[int]bool{515: true, 631: true}

// ListSNMP enumerates every broadcast-capable IPv4 interface and probes each
// host in its /24 (or smaller) subnet with an SNMP GET for the Host-MIB
// device type, for up to scanTimeout (30s default per spec.md §5).
//
// spec.md §4.B describes this as sending a single GetRequest to each
// interface's broadcast address and waiting for asynchronous replies.
// gosnmp is a unicast request/response client (it matches one reply to one
// sent request over a connected UDP socket) and the retrieval pack carries
// no raw-broadcast SNMP library, so this implements the same outcome —
// "which hosts on this link answer SNMP as a printer" — as a bounded pool
// of concurrent per-host unicast GETs across the broadcast domain, mirroring
// the teacher's concurrent liveness-scan pool (agent/scanner/pipeline.go).
func ListSNMP(ctx context.Context, scanTimeout time.Duration, workers int, onFound func(SNMPDevice) bool) error {
	if scanTimeout <= 0 {
		scanTimeout = 30 * time.Second
	}
	if workers <= 0 {
		workers = 32
	}

	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	hosts, err := broadcastSubnetHosts()
	if err != nil {
		return err
	}

	jobs := make(chan string, len(hosts))
	for _, h := range hosts {
		jobs <- h
	}
	close(jobs)

	var (
		wg      sync.WaitGroup
		stopped bool
		mu      sync.Mutex
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for host := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				mu.Lock()
				if stopped {
					mu.Unlock()
					return
				}
				mu.Unlock()

				dev, ok := probeHost(ctx, host)
				if !ok {
					continue
				}
				mu.Lock()
				if !stopped && !onFound(dev) {
					stopped = true
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return nil
}

func probeHost(ctx context.Context, host string) (SNMPDevice, bool) {
	client := &gosnmp.GoSNMP{
		Target:    host,
		Port:      161,
		Community: "public",
		Version:   gosnmp.Version1,
		Timeout:   2 * time.Second,
		Retries:   0,
	}
	if err := client.Connect(); err != nil {
		return SNMPDevice{}, false
	}
	defer client.Conn.Close()

	pkt, err := client.Get([]string{snmpoids.HrDeviceType})
	if err != nil || len(pkt.Variables) == 0 {
		return SNMPDevice{}, false
	}
	oidVal, ok := pkt.Variables[0].Value.(string)
	if !ok {
		return SNMPDevice{}, false
	}
	if len(oidVal) < len(snmpoids.HrDeviceTypePrefix) || oidVal[:len(snmpoids.HrDeviceTypePrefix)] != snmpoids.HrDeviceTypePrefix {
		return SNMPDevice{}, false
	}

	dev := SNMPDevice{Host: host, Port: device.DefaultSocketPort}
	if p, err := client.Get([]string{snmpoids.SysName}); err == nil && len(p.Variables) > 0 {
		if b, ok := p.Variables[0].Value.([]byte); ok {
			dev.SysName = string(b)
		}
	}
	for _, oid := range snmpoids.VendorDeviceIDOIDs {
		p, err := client.Get([]string{oid})
		if err != nil || len(p.Variables) == 0 {
			continue
		}
		if b, ok := p.Variables[0].Value.([]byte); ok && len(b) > 0 {
			dev.DeviceID = string(b)
			break
		}
	}
	if skippedPorts[dev.Port] {
		return SNMPDevice{}, false
	}
	dev.URI = fmt.Sprintf("socket://%s:%d/", dev.Host, dev.Port)
	return dev, true
}

func broadcastSubnetHosts() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("discovery: list interfaces: %w", err)
	}

	var hosts []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagBroadcast == 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			hosts = append(hosts, hostsInSubnet(ipnet, 254)...)
		}
	}
	return hosts, nil
}

// hostsInSubnet enumerates up to maxHosts addresses in ipnet, excluding the
// network and broadcast addresses.
func hostsInSubnet(ipnet *net.IPNet, maxHosts int) []string {
	ip := ipnet.IP.To4()
	mask := ipnet.Mask
	ones, bits := mask.Size()

	base := binaryIP(ip) &^ binaryMaskInv(mask)
	count := 1 << uint(bits-ones)
	if count > maxHosts+2 {
		count = maxHosts + 2
	}

	var out []string
	for i := 1; i < count-1; i++ {
		out = append(out, ipFromBinary(base+uint32(i)).String())
	}
	return out
}

func binaryIP(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

func binaryMaskInv(mask net.IPMask) uint32 {
	return ^binaryIP(net.IP(mask))
}

func ipFromBinary(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
