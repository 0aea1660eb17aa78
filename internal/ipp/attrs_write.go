package ipp

import (
	"github.com/alexpevzner/goipp"
)

// writeJobAttrs appends one job-attrs group to resp for r (spec.md §4.F
// Print-Job/Get-Job-Attributes/Get-Jobs response attributes).
func writeJobAttrs(resp *goipp.Message, r JobResult) {
	grp := goipp.AttributeGroup{Tag: goipp.TagJobGroup}
	grp.Attrs.Add(makeAttr("job-id", goipp.TagInteger, goipp.Integer(r.ID)))
	grp.Attrs.Add(makeAttr("job-uri", goipp.TagURI, goipp.String(r.PrinterURI)))
	grp.Attrs.Add(makeAttr("job-state", goipp.TagEnum, goipp.Integer(r.State)))
	if r.Name != "" {
		grp.Attrs.Add(makeAttr("job-name", goipp.TagName, goipp.String(r.Name)))
	}
	if len(r.StateReasons) == 0 {
		r.StateReasons = []string{"none"}
	}
	reasonsAttr := makeAttr("job-state-reasons", goipp.TagKeyword, goipp.String(r.StateReasons[0]))
	for _, reason := range r.StateReasons[1:] {
		reasonsAttr.AddValue(goipp.TagKeyword, goipp.String(reason))
	}
	grp.Attrs.Add(reasonsAttr)
	grp.Attrs.Add(makeAttr("job-impressions-completed", goipp.TagInteger, goipp.Integer(r.Impressions)))
	if r.Message != "" {
		grp.Attrs.Add(makeAttr("job-state-message", goipp.TagText, goipp.String(r.Message)))
	}
	resp.Groups = append(resp.Groups, &grp)
}

// writePrinterAttrs appends one printer-attrs group to resp (spec.md §4.D
// Create-Printer/Get-Printer-Attributes response attributes).
func writePrinterAttrs(resp *goipp.Message, r PrinterResult) {
	grp := goipp.AttributeGroup{Tag: goipp.TagPrinterGroup}
	grp.Attrs.Add(makeAttr("printer-uri-supported", goipp.TagURI, goipp.String(r.URI)))
	grp.Attrs.Add(makeAttr("printer-name", goipp.TagName, goipp.String(r.Name)))
	grp.Attrs.Add(makeAttr("printer-state", goipp.TagEnum, goipp.Integer(r.State)))
	grp.Attrs.Add(makeAttr("printer-is-accepting-jobs", goipp.TagBoolean, goipp.Boolean(r.IsAccepting)))
	if len(r.StateReasons) == 0 {
		r.StateReasons = []string{"none"}
	}
	reasonsAttr := makeAttr("printer-state-reasons", goipp.TagKeyword, goipp.String(r.StateReasons[0]))
	for _, reason := range r.StateReasons[1:] {
		reasonsAttr.AddValue(goipp.TagKeyword, goipp.String(reason))
	}
	grp.Attrs.Add(reasonsAttr)
	if r.DeviceURI != "" {
		grp.Attrs.Add(makeAttr("device-uri", goipp.TagURI, goipp.String(r.DeviceURI)))
	}
	for _, a := range r.Attrs {
		grp.Attrs.Add(a)
	}
	resp.Groups = append(resp.Groups, &grp)
}

// writeSubscriptionAttrs appends one subscription-attrs group to resp
// (spec.md §4.E/§4.F).
func writeSubscriptionAttrs(resp *goipp.Message, r SubscriptionResult) {
	grp := goipp.AttributeGroup{Tag: goipp.TagSubscriptionGroup}
	grp.Attrs.Add(makeAttr("notify-subscription-id", goipp.TagInteger, goipp.Integer(r.ID)))
	grp.Attrs.Add(makeAttr("notify-lease-duration", goipp.TagInteger, goipp.Integer(r.LeaseSeconds)))
	if len(r.Events) > 0 {
		eventsAttr := makeAttr("notify-events", goipp.TagKeyword, goipp.String(r.Events[0]))
		for _, e := range r.Events[1:] {
			eventsAttr.AddValue(goipp.TagKeyword, goipp.String(e))
		}
		grp.Attrs.Add(eventsAttr)
	}
	resp.Groups = append(resp.Groups, &grp)
}
