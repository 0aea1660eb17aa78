// Package snmpoids centralizes the SNMP OIDs consumed by the device layer
// (spec.md §4.A) and the discovery layer (§4.B), mirroring the structure of
// the Host Resources, Printer, and Port Monitor MIBs so callers never
// scatter raw dotted strings through the codebase. Grounded on
// common/snmp/oids/oids.go of the teacher repo, extended with the
// localization and vendor-specific OIDs spec.md §4.A/§6 require.
package snmpoids

const (
	// --- Host Resources MIB (RFC 2790) ---

	SysDescr    = "1.3.6.1.2.1.1.1.0"
	SysObjectID = "1.3.6.1.2.1.1.2.0"
	SysName     = "1.3.6.1.2.1.1.5.0"

	// HrDeviceType is walked during SNMP broadcast discovery; the "printer"
	// device type is 1.3.6.1.2.1.25.3.1.5.
	HrDeviceType       = "1.3.6.1.2.1.25.3.2.1.2.1"
	HrDeviceTypePrefix = "1.3.6.1.2.1.25.3.1.5"

	HrDeviceDescr = "1.3.6.1.2.1.25.3.2.1.3.1"
)

const (
	// --- Printer MIB v2 (RFC 3805) ---

	PrtGeneralSerialNumber = "1.3.6.1.2.1.43.5.1.1.17.1"
	PrtMarkerLifeCount     = "1.3.6.1.2.1.43.10.2.1.4.1"

	HrPrinterStatus             = "1.3.6.1.2.1.25.3.5.1.1"
	HrPrinterDetectedErrorState = "1.3.6.1.2.1.25.3.5.1.2.1"

	// Supply/colorant tables. device.Supplies walks the supplies columns
	// below on every call; PrtMarkerColorantValue is defined but not walked.
	PrtMarkerSuppliesEntry   = "1.3.6.1.2.1.43.11.1.1"
	PrtMarkerSuppliesLevel   = "1.3.6.1.2.1.43.11.1.1.9"
	PrtMarkerSuppliesMaxCap  = "1.3.6.1.2.1.43.11.1.1.8"
	PrtMarkerSuppliesClass   = "1.3.6.1.2.1.43.11.1.1.4"
	PrtMarkerSuppliesType    = "1.3.6.1.2.1.43.11.1.1.5"
	PrtMarkerSuppliesDesc    = "1.3.6.1.2.1.43.11.1.1.6"
	PrtMarkerSuppliesColorID = "1.3.6.1.2.1.43.11.1.1.3"

	PrtMarkerColorantValue = "1.3.6.1.2.1.43.12.1.1.4"

	// Localization (charset of the supply descriptions, spec.md §4.A).
	PrtGeneralCurrentLocalization = "1.3.6.1.2.1.43.6.1.1.6.1.1"
	PrtLocalizationCharacterSet   = "1.3.6.1.2.1.43.7.1.1.3"
)

const (
	// --- Vendor / Port Monitor device-ID OIDs (spec.md §4.A, §6) ---

	// PWG Port Monitor (PWG 5100.6).
	PpmPrinterIEEE1284DeviceID = "1.3.6.1.4.1.2699.1.2.1.2.1.3"

	// HP JetDirect device-id + port.
	HPDeviceID = "1.3.6.1.4.1.11.2.3.9.1.1.7.0"
	HPPort     = "1.3.6.1.4.1.11.2.3.9.1.1.9.0"

	// Lexmark.
	LexmarkDeviceID = "1.3.6.1.4.1.641.6.1.1.0"

	// Zebra.
	ZebraDeviceID = "1.3.6.1.4.1.10642.1.1.0"

	// Extended Networks port monitor.
	ExtendedNetworksDeviceID = "1.3.6.1.4.1.641.2.1.2.1.4.1"
)

// VendorDeviceIDOIDs lists the device-ID OIDs queried in sequence by
// GetDeviceID (spec.md §4.A), in order: PWG Port Monitor, HP, Lexmark,
// Zebra, then Extended Networks.
var VendorDeviceIDOIDs = []string{
	PpmPrinterIEEE1284DeviceID,
	HPDeviceID,
	LexmarkDeviceID,
	ZebraDeviceID,
	ExtendedNetworksDeviceID,
}

// CharsetName maps a Printer-MIB prtLocalizationCharacterSet enum value to
// the canonical charset name used by the device layer's charset decoder
// (spec.md §4.A: "ASCII, Latin-1, Shift-JIS, UTF-8, UTF-16 BE/LE, UTF-32").
func CharsetName(v int) string {
	switch v {
	case 3:
		return "us-ascii"
	case 4:
		return "iso-8859-1"
	case 5:
		return "iso-8859-2"
	case 82:
		return "shift-jis"
	case 106:
		return "utf-8"
	case 1000:
		return "utf-16be"
	case 1001:
		return "utf-16le"
	case 1013:
		return "utf-32be"
	case 1014:
		return "utf-32le"
	default:
		return "us-ascii"
	}
}
