package device

import (
	"context"
	"strings"
	"time"

	"github.com/michaelrsweet/pappl-sub004/internal/snmpoids"
)

// GetDeviceID queries the PWG, HP, Lexmark, Zebra, and Extended-Networks
// vendor OIDs in sequence for up to 10 seconds total, converting embedded
// newlines to ';' (spec.md §4.A get_device_id()).
func (h *Handle) GetDeviceID(ctx context.Context) (string, error) {
	client, err := h.ensureSNMP()
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(10 * time.Second)
	for _, oid := range snmpoids.VendorDeviceIDOIDs {
		if time.Now().After(deadline) {
			break
		}
		pkt, err := client.Get([]string{oid})
		if err != nil || len(pkt.Variables) == 0 {
			continue
		}
		if v, ok := pkt.Variables[0].Value.([]byte); ok && len(v) > 0 {
			return normalizeDeviceID(string(v)), nil
		}
	}
	return "", nil
}

func normalizeDeviceID(s string) string {
	s = strings.ReplaceAll(s, "\r\n", ";")
	s = strings.ReplaceAll(s, "\n", ";")
	return s
}

// ParseDeviceID splits an IEEE-1284 device ID string ("KEY:VALUE;KEY:VALUE;")
// into its fields. Supplemented per SPEC_FULL.md: a complete core needs to
// parse device IDs back for driver auto-matching, not just retrieve them;
// grounded on cups-connector's Device ID handling in other_examples/.
func ParseDeviceID(id string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(id, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		fields[strings.ToUpper(strings.TrimSpace(kv[0]))] = strings.TrimSpace(kv[1])
	}
	return fields
}
