package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/michaelrsweet/pappl-sub004/internal/snmpoids"
)

// SupplyKind classifies a marker supply (spec.md §4.A).
type SupplyKind string

const (
	SupplyToner   SupplyKind = "TONER"
	SupplyInk     SupplyKind = "INK"
	SupplyWaste   SupplyKind = "WASTE"
	SupplyUnknown SupplyKind = "UNKNOWN"
)

// Supply is one reported marker supply (spec.md §4.A supplies()).
type Supply struct {
	Type        SupplyKind
	Color       string
	LevelPct    int
	IsConsumed  bool
	Description string
}

// supplyIndex holds one marker-supplies table entry gathered during a
// Supplies() walk. It is rebuilt on every call; nothing is cached between
// calls.
type supplyIndex struct {
	idx         string
	class       int
	kind        int
	description string
	colorID     string
}

// Supplies walks the Printer-MIB marker supplies table. The device's
// localization charset is resolved on the first call only and reused after
// that. Every call, first or later, walks the class, type, description,
// colorant-index, level and max-capacity columns in full; the
// prtMarkerColorantValue table is not walked.
func (h *Handle) Supplies(ctx context.Context, max int) ([]Supply, error) {
	client, err := h.ensureSNMP()
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	firstCall := !h.haveChar
	h.mu.Unlock()

	if firstCall {
		cs := fetchCharset(client)
		h.mu.Lock()
		h.charset = cs
		h.haveChar = true
		h.mu.Unlock()
		return h.fullSuppliesWalk(client, max)
	}
	return h.fullSuppliesWalk(client, max)
}

func fetchCharset(client SNMPClient) string {
	pkt, err := client.Get([]string{snmpoids.PrtGeneralCurrentLocalization})
	if err != nil || len(pkt.Variables) == 0 {
		return "us-ascii"
	}
	locIdx := pduInt(pkt.Variables[0])

	oid := fmt.Sprintf("%s.%d.1", snmpoids.PrtLocalizationCharacterSet, locIdx)
	pkt, err = client.Get([]string{oid})
	if err != nil || len(pkt.Variables) == 0 {
		return "us-ascii"
	}
	return snmpoids.CharsetName(pduInt(pkt.Variables[0]))
}

func (h *Handle) fullSuppliesWalk(client SNMPClient, max int) ([]Supply, error) {
	entries := map[string]*supplyIndex{}

	client.Walk(snmpoids.PrtMarkerSuppliesClass, func(pdu gosnmp.SnmpPDU) error {
		idx := lastIndexComponent(pdu.Name)
		entries[idx] = &supplyIndex{idx: idx, class: pduInt(pdu)}
		return nil
	})
	client.Walk(snmpoids.PrtMarkerSuppliesType, func(pdu gosnmp.SnmpPDU) error {
		idx := lastIndexComponent(pdu.Name)
		if e, ok := entries[idx]; ok {
			e.kind = pduInt(pdu)
		}
		return nil
	})
	client.Walk(snmpoids.PrtMarkerSuppliesDesc, func(pdu gosnmp.SnmpPDU) error {
		idx := lastIndexComponent(pdu.Name)
		if e, ok := entries[idx]; ok {
			e.description = pduString(pdu)
		}
		return nil
	})
	client.Walk(snmpoids.PrtMarkerSuppliesColorID, func(pdu gosnmp.SnmpPDU) error {
		idx := lastIndexComponent(pdu.Name)
		if e, ok := entries[idx]; ok {
			e.colorID = pduString(pdu)
		}
		return nil
	})

	levels := map[string]int{}
	caps := map[string]int{}
	client.Walk(snmpoids.PrtMarkerSuppliesLevel, func(pdu gosnmp.SnmpPDU) error {
		levels[lastIndexComponent(pdu.Name)] = pduInt(pdu)
		return nil
	})
	client.Walk(snmpoids.PrtMarkerSuppliesMaxCap, func(pdu gosnmp.SnmpPDU) error {
		caps[lastIndexComponent(pdu.Name)] = pduInt(pdu)
		return nil
	})

	h.mu.Lock()
	charset := h.charset
	h.mu.Unlock()

	out := make([]Supply, 0, len(entries))
	for idx, e := range entries {
		if max > 0 && len(out) >= max {
			break
		}
		level := levels[idx]
		capv := caps[idx]
		pct := 0
		if capv > 0 && level >= 0 {
			pct = level * 100 / capv
		}
		out = append(out, Supply{
			Type:        classifySupply(e.class, e.kind),
			Color:       e.colorID,
			LevelPct:    pct,
			IsConsumed:  e.class == 3,
			Description: DecodeCharset(e.description, charset),
		})
	}
	return out, nil
}

func classifySupply(class, kind int) SupplyKind {
	// Printer-MIB PrtMarkerSuppliesTypeTONER=3, INK=8/9, WASTETONER=12,
	// WASTEINK=13. class 3 == "supplyThatIsConsumed".
	switch kind {
	case 3:
		return SupplyToner
	case 8, 9:
		return SupplyInk
	case 12, 13:
		return SupplyWaste
	default:
		if class == 3 {
			return SupplyUnknown
		}
		return SupplyUnknown
	}
}

func lastIndexComponent(oid string) string {
	parts := strings.Split(oid, ".")
	return parts[len(parts)-1]
}

func pduInt(pdu gosnmp.SnmpPDU) int {
	switch v := pdu.Value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint:
		return int(v)
	case uint64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return ""
	}
}
