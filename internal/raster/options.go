package raster

import "github.com/alexpevzner/goipp"

// ResolveOptions builds an Options from job attributes, falling back to
// printer defaults and then driver defaults for anything the job did not
// request (spec.md §4.C: "Parse copies, media, orientation-requested,
// print-color-mode ..., print-quality, printer-resolution, print-speed,
// print-darkness from job attrs, falling back to printer defaults then
// driver defaults").
func ResolveOptions(jobAttrs, printerDefaults, driverDefaults goipp.Attributes, dither [16][]byte) Options {
	o := Options{Dither: dither}

	o.Copies = intAttr(jobAttrs, printerDefaults, driverDefaults, "copies", 1)
	o.Media = stringAttr(jobAttrs, printerDefaults, driverDefaults, "media", "na_letter_8.5x11in")
	o.ColorMode = stringAttr(jobAttrs, printerDefaults, driverDefaults, "print-color-mode", "bi-level")
	o.Quality = stringAttr(jobAttrs, printerDefaults, driverDefaults, "print-quality", "normal")
	o.Speed = intAttr(jobAttrs, printerDefaults, driverDefaults, "print-speed", 0)
	o.Darkness = intAttr(jobAttrs, printerDefaults, driverDefaults, "print-darkness", 50)

	switch intAttr(jobAttrs, printerDefaults, driverDefaults, "orientation-requested", 3) {
	case 4:
		o.Orientation = Orient90CW
	case 5:
		o.Orientation = Orient180
	case 6:
		o.Orientation = Orient90CCW
	default:
		o.Orientation = Orient0
	}

	res := resolutionAttr(jobAttrs, printerDefaults, driverDefaults)
	o.Resolution = res

	return o
}

func findAttr(name string, groups ...goipp.Attributes) (goipp.Attribute, bool) {
	for _, g := range groups {
		for _, a := range g {
			if a.Name == name && len(a.Values) > 0 {
				return a, true
			}
		}
	}
	return goipp.Attribute{}, false
}

func intAttr(job, printer, driver goipp.Attributes, name string, def int) int {
	a, ok := findAttr(name, job, printer, driver)
	if !ok {
		return def
	}
	if v, ok := a.Values[0].V.(goipp.Integer); ok {
		return int(v)
	}
	return def
}

func stringAttr(job, printer, driver goipp.Attributes, name, def string) string {
	a, ok := findAttr(name, job, printer, driver)
	if !ok {
		return def
	}
	if s, ok := a.Values[0].V.(goipp.String); ok {
		return string(s)
	}
	// Keyword, Enum-as-string, and other Value kinds all implement
	// fmt.Stringer; fall back to that rather than enumerating every tag.
	return a.Values[0].V.String()
}

func resolutionAttr(job, printer, driver goipp.Attributes) Resolution {
	a, ok := findAttr("printer-resolution", job, printer, driver)
	if !ok {
		return Resolution{X: 300, Y: 300}
	}
	if v, ok := a.Values[0].V.(goipp.Resolution); ok {
		return Resolution{X: v.Xres, Y: v.Yres}
	}
	return Resolution{X: 300, Y: 300}
}
