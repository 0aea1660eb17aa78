package ipp

import (
	"context"
	"io"

	"github.com/alexpevzner/goipp"
)

// handlerFunc processes one decoded request against backend, writing
// whatever result groups it needs onto resp. req and resp share
// req.RequestID; Dispatch has already set resp.Version/Code/RequestID.
type handlerFunc func(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader, resp *goipp.Message) goipp.Status

var handlers = map[goipp.Op]handlerFunc{
	goipp.OpPrintJob:                    handlePrintJob,
	goipp.OpValidateJob:                 handleValidateJob,
	goipp.OpCancelJob:                   handleCancelJob,
	goipp.OpGetJobAttributes:            handleGetJobAttributes,
	goipp.OpGetJobs:                     handleGetJobs,
	goipp.OpGetPrinterAttributes:        handleGetPrinterAttributes,
	goipp.OpSetPrinterAttributes:        handleSetPrinterAttributes,
	goipp.OpCreatePrinter:               handleCreatePrinter,
	goipp.OpDeletePrinter:               handleDeletePrinter,
	goipp.OpGetPrinters:                 handleGetPrinters,
	goipp.OpGetSystemAttributes:         handleGetSystemAttributes,
	goipp.OpSetSystemAttributes:         handleSetSystemAttributes,
	goipp.OpShutdownAllPrinters:         handleShutdownAllPrinters,
	goipp.OpCreateJobSubscriptions:      handleCreateJobSubscriptions,
	goipp.OpCreatePrinterSubscriptions:  handleCreatePrinterSubscriptions,
	goipp.OpCreateSystemSubscriptions:   handleCreateSystemSubscriptions,
	goipp.OpGetSubscriptions:            handleGetSubscriptions,
	goipp.OpGetSubscriptionAttributes:   handleGetSubscriptionAttributes,
	goipp.OpRenewSubscription:           handleRenewSubscription,
	goipp.OpCancelSubscription:          handleCancelSubscription,
	goipp.OpGetNotifications:            handleGetNotifications,
}

// Dispatch decodes req.Code as an operation, routes to the matching
// handler, and returns a fully-formed response message (spec.md §4.F:
// "malformed requests get client-error-bad-request; unknown operations get
// server-error-operation-not-supported"). body is the request's document
// data, already separated from the attribute stream by the HTTP layer.
func Dispatch(ctx context.Context, backend Backend, req *goipp.Message, body io.Reader) *goipp.Message {
	resp := goipp.NewResponse(goipp.DefaultVersion, goipp.StatusOk, req.RequestID)
	setBaseOperationAttrs(resp)

	op := goipp.Op(req.Code)
	h, ok := handlers[op]
	if !ok {
		resp.Code = goipp.Code(goipp.StatusErrorOperationNotSupported)
		return resp
	}

	status := h(ctx, backend, req, body, resp)
	resp.Code = goipp.Code(status)
	return resp
}

// setBaseOperationAttrs adds the two operation attributes every IPP
// response must carry, attributes-charset and attributes-natural-language
// (spec.md §4.F, RFC 8011 §4.1.4.1).
func setBaseOperationAttrs(resp *goipp.Message) {
	op := resp.Operation()
	op.Add(makeAttr("attributes-charset", goipp.TagCharset, goipp.String("utf-8")))
	op.Add(makeAttr("attributes-natural-language", goipp.TagLanguage, goipp.String("en")))
}

// makeAttr builds a single-valued attribute. goipp exposes Attribute.AddValue
// but no single-call constructor, so this is the one place that assembles
// the zero-value-plus-AddValue pattern every handler in this package needs.
func makeAttr(name string, tag goipp.Tag, val goipp.Value) goipp.Attribute {
	attr := goipp.Attribute{Name: name}
	attr.AddValue(tag, val)
	return attr
}

// requireAttr fetches the single string/name/uri value named name from the
// operation group of req, or returns ok=false.
func requireAttr(req *goipp.Message, name string) (string, bool) {
	for _, a := range *req.Operation() {
		if a.Name != name || len(a.Values) == 0 {
			continue
		}
		switch v := a.Values[0].V.(type) {
		case goipp.String:
			return string(v), true
		default:
			return v.String(), true
		}
	}
	return "", false
}

func requireIntAttr(req *goipp.Message, name string) (int, bool) {
	for _, a := range *req.Operation() {
		if a.Name != name || len(a.Values) == 0 {
			continue
		}
		if v, ok := a.Values[0].V.(goipp.Integer); ok {
			return int(v), true
		}
	}
	return 0, false
}

func requesterUserName(req *goipp.Message) string {
	v, _ := requireAttr(req, "requesting-user-name")
	return v
}
