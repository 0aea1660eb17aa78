package ipp

import (
	"context"
	"errors"
	"io"

	"github.com/alexpevzner/goipp"

	"github.com/michaelrsweet/pappl-sub004/internal/raster"
)

func handlePrintJob(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	uri, ok := requireAttr(req, "printer-uri")
	if !ok {
		return goipp.StatusErrorBadRequest
	}
	name, _ := requireAttr(req, "job-name")
	format, _ := requireAttr(req, "document-format")
	if format == "" {
		format = "application/octet-stream"
	}

	result, err := backend.PrintJob(ctx, JobSubmission{
		PrinterURI: uri,
		JobName:    name,
		Requester:  requesterUserName(req),
		Format:     format,
		JobAttrs:   *req.Job(),
		Document:   body,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrServiceUnavailable):
			return goipp.StatusErrorServiceUnavailable
		case errors.Is(err, raster.ErrUnsupportedFormat):
			return goipp.StatusErrorDocumentFormatError
		default:
			return goipp.StatusErrorNotPossible
		}
	}
	writeJobAttrs(resp, result)
	return goipp.StatusOk
}

func handleValidateJob(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	uri, ok := requireAttr(req, "printer-uri")
	if !ok {
		return goipp.StatusErrorBadRequest
	}
	format, _ := requireAttr(req, "document-format")
	err := backend.ValidateJob(ctx, JobSubmission{
		PrinterURI: uri,
		Requester:  requesterUserName(req),
		Format:     format,
		JobAttrs:   *req.Job(),
	})
	if err != nil {
		if errors.Is(err, raster.ErrUnsupportedFormat) {
			return goipp.StatusErrorDocumentFormatError
		}
		return goipp.StatusErrorAttributesOrValues
	}
	return goipp.StatusOk
}

func handleCancelJob(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	uri, ok := requireAttr(req, "printer-uri")
	jobID, idOK := requireIntAttr(req, "job-id")
	if !ok || !idOK {
		return goipp.StatusErrorBadRequest
	}
	if err := backend.CancelJob(ctx, uri, jobID); err != nil {
		return goipp.StatusErrorNotFound
	}
	return goipp.StatusOk
}

func handleGetJobAttributes(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	uri, ok := requireAttr(req, "printer-uri")
	jobID, idOK := requireIntAttr(req, "job-id")
	if !ok || !idOK {
		return goipp.StatusErrorBadRequest
	}
	result, err := backend.GetJobAttributes(ctx, uri, jobID)
	if err != nil {
		return goipp.StatusErrorNotFound
	}
	writeJobAttrs(resp, result)
	return goipp.StatusOk
}

func handleGetJobs(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	uri, ok := requireAttr(req, "printer-uri")
	if !ok {
		return goipp.StatusErrorBadRequest
	}
	which, _ := requireAttr(req, "which-jobs")
	if which == "" {
		which = "not-completed"
	}
	limit, _ := requireIntAttr(req, "limit")
	myJobs := false
	for _, a := range *req.Operation() {
		if a.Name == "my-jobs" && len(a.Values) > 0 {
			if b, ok := a.Values[0].V.(goipp.Boolean); ok {
				myJobs = bool(b)
			}
		}
	}

	jobs, err := backend.GetJobs(ctx, uri, which, myJobs, limit)
	if err != nil {
		return goipp.StatusErrorNotFound
	}
	for _, j := range jobs {
		writeJobAttrs(resp, j)
	}
	return goipp.StatusOk
}

func handleGetPrinterAttributes(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	uri, ok := requireAttr(req, "printer-uri")
	if !ok {
		return goipp.StatusErrorBadRequest
	}
	var requested []string
	for _, a := range *req.Operation() {
		if a.Name != "requested-attributes" {
			continue
		}
		for _, v := range a.Values {
			if s, ok := v.V.(goipp.String); ok {
				requested = append(requested, string(s))
			}
		}
	}

	result, err := backend.GetPrinterAttributes(ctx, uri, requested)
	if err != nil {
		return goipp.StatusErrorNotFound
	}
	writePrinterAttrs(resp, result)
	return goipp.StatusOk
}

func handleSetPrinterAttributes(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	uri, ok := requireAttr(req, "printer-uri")
	if !ok {
		return goipp.StatusErrorBadRequest
	}
	if err := backend.SetPrinterAttributes(ctx, uri, *req.Printer()); err != nil {
		return goipp.StatusErrorAttributesNotSettable
	}
	return goipp.StatusOk
}

func handleCreatePrinter(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	name, ok := requireAttr(req, "printer-service-type")
	if !ok {
		name, ok = requireAttr(req, "printer-name")
	}
	if !ok {
		return goipp.StatusErrorBadRequest
	}
	deviceURI, _ := requireAttr(req, "smi55357-device-uri")
	if deviceURI == "" {
		deviceURI, _ = requireAttr(req, "device-uri")
	}
	driver, _ := requireAttr(req, "smi55357-driver")
	if driver == "" {
		driver = "auto"
	}

	result, err := backend.CreatePrinter(ctx, PrinterCreateRequest{
		Name:      name,
		DeviceURI: deviceURI,
		DriverID:  driver,
	})
	if err != nil {
		return goipp.StatusErrorNotPossible
	}
	writePrinterAttrs(resp, result)
	return goipp.StatusOk
}

func handleDeletePrinter(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	uri, ok := requireAttr(req, "printer-uri")
	if !ok {
		return goipp.StatusErrorBadRequest
	}
	if err := backend.DeletePrinter(ctx, uri); err != nil {
		return goipp.StatusErrorNotFound
	}
	return goipp.StatusOk
}

func handleGetPrinters(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	printers, err := backend.GetPrinters(ctx)
	if err != nil {
		return goipp.StatusErrorInternal
	}
	for _, p := range printers {
		writePrinterAttrs(resp, p)
	}
	return goipp.StatusOk
}

func handleGetSystemAttributes(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	var requested []string
	for _, a := range *req.Operation() {
		if a.Name != "requested-attributes" {
			continue
		}
		for _, v := range a.Values {
			if s, ok := v.V.(goipp.String); ok {
				requested = append(requested, string(s))
			}
		}
	}
	attrs, err := backend.GetSystemAttributes(ctx, requested)
	if err != nil {
		return goipp.StatusErrorInternal
	}
	grp := goipp.AttributeGroup{Tag: goipp.TagSystemGroup, Attrs: attrs}
	resp.Groups = append(resp.Groups, &grp)
	return goipp.StatusOk
}

func handleSetSystemAttributes(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	if err := backend.SetSystemAttributes(ctx, *req.System()); err != nil {
		return goipp.StatusErrorAttributesNotSettable
	}
	return goipp.StatusOk
}

func handleShutdownAllPrinters(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	if err := backend.ShutdownAllPrinters(ctx); err != nil {
		return goipp.StatusErrorInternal
	}
	return goipp.StatusOk
}

func handleCreateJobSubscriptions(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	return createSubscriptions(ctx, backend, req, resp)
}

func handleCreatePrinterSubscriptions(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	return createSubscriptions(ctx, backend, req, resp)
}

func handleCreateSystemSubscriptions(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	return createSubscriptions(ctx, backend, req, resp)
}

func createSubscriptions(ctx context.Context, backend Backend, req *goipp.Message, resp *goipp.Message) goipp.Status {
	uri, ok := requireAttr(req, "printer-uri")
	if !ok {
		uri, ok = requireAttr(req, "notify-recipient-uri")
	}

	var events []string
	for _, a := range *req.Subscription() {
		if a.Name != "notify-events" {
			continue
		}
		for _, v := range a.Values {
			if s, ok := v.V.(goipp.String); ok {
				events = append(events, string(s))
			}
		}
	}
	lease, _ := requireIntAttr(req, "notify-lease-duration")

	result, err := backend.CreateSubscriptions(ctx, SubscriptionCreateRequest{
		OwnerURI:     uri,
		Events:       events,
		LeaseSeconds: lease,
	})
	if err != nil {
		return goipp.StatusErrorIgnoredAllSubscriptions
	}

	writeSubscriptionAttrs(resp, SubscriptionResult{ID: result.SubscriptionID, Events: result.AcceptedEvents, LeaseSeconds: lease})
	if len(result.UnsupportedEvents) > 0 {
		return goipp.StatusOkIgnoredSubscriptions
	}
	return goipp.StatusOk
}

func handleGetSubscriptions(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	uri, _ := requireAttr(req, "printer-uri")
	subs, err := backend.GetSubscriptions(ctx, uri)
	if err != nil {
		return goipp.StatusErrorNotFound
	}
	for _, s := range subs {
		writeSubscriptionAttrs(resp, s)
	}
	return goipp.StatusOk
}

func handleGetSubscriptionAttributes(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	id, ok := requireIntAttr(req, "notify-subscription-id")
	if !ok {
		return goipp.StatusErrorBadRequest
	}
	s, err := backend.GetSubscriptionAttributes(ctx, id)
	if err != nil {
		return goipp.StatusErrorNotFound
	}
	writeSubscriptionAttrs(resp, s)
	return goipp.StatusOk
}

func handleRenewSubscription(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	id, ok := requireIntAttr(req, "notify-subscription-id")
	if !ok {
		return goipp.StatusErrorBadRequest
	}
	lease, _ := requireIntAttr(req, "notify-lease-duration")
	if err := backend.RenewSubscription(ctx, id, lease); err != nil {
		return goipp.StatusErrorNotFound
	}
	return goipp.StatusOk
}

func handleCancelSubscription(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	id, ok := requireIntAttr(req, "notify-subscription-id")
	if !ok {
		return goipp.StatusErrorBadRequest
	}
	if err := backend.CancelSubscription(ctx, id); err != nil {
		return goipp.StatusErrorNotFound
	}
	return goipp.StatusOk
}

func handleGetNotifications(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status {
	var ids []int
	var afterSeqs []int
	wait := false
	for _, a := range *req.Operation() {
		switch a.Name {
		case "notify-subscription-ids":
			for _, v := range a.Values {
				if n, ok := v.V.(goipp.Integer); ok {
					ids = append(ids, int(n))
				}
			}
		case "notify-sequence-numbers":
			for _, v := range a.Values {
				if n, ok := v.V.(goipp.Integer); ok {
					afterSeqs = append(afterSeqs, int(n))
				}
			}
		case "notify-wait":
			if len(a.Values) > 0 {
				if b, ok := a.Values[0].V.(goipp.Boolean); ok {
					wait = bool(b)
				}
			}
		}
	}
	if len(ids) == 0 {
		return goipp.StatusErrorBadRequest
	}

	// notify-sequence-numbers is positional against notify-subscription-ids
	// (RFC 3995 §3.3.3); an id with no paired sequence number starts at 0.
	afterSeq := make(map[int]int, len(ids))
	for i, id := range ids {
		if i < len(afterSeqs) {
			afterSeq[id] = afterSeqs[i]
		}
	}

	result, err := backend.GetNotifications(ctx, NotificationsRequest{
		SubscriptionIDs: ids,
		AfterSeq:        afterSeq,
		Wait:            wait,
	})
	if err != nil {
		return goipp.StatusErrorNotFound
	}
	for _, ev := range result.Events {
		grp := goipp.AttributeGroup{Tag: goipp.TagEventNotificationGroup}
		grp.Attrs.Add(makeAttr("notify-subscription-id", goipp.TagInteger, goipp.Integer(ev.SubscriptionID)))
		grp.Attrs.Add(makeAttr("notify-sequence-number", goipp.TagInteger, goipp.Integer(ev.Sequence)))
		grp.Attrs.Add(makeAttr("notify-subscribed-event", goipp.TagKeyword, goipp.String(ev.Kind)))
		resp.Groups = append(resp.Groups, &grp)
	}
	if len(result.Events) == 0 {
		return goipp.StatusOkEventsComplete
	}
	return goipp.StatusOk
}
