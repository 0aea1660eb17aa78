// Package ipp implements the operation dispatch table of spec.md §4.F on
// top of goipp's wire types: each IPP operation is a function taking the
// decoded request and a Backend, returning a response message. Handlers
// never touch sockets directly; internal/httpserver owns the HTTP/TLS
// transport and calls Dispatch with the decoded request.
package ipp

import (
	"context"
	"errors"

	"github.com/alexpevzner/goipp"
)

// ErrServiceUnavailable is returned by PrintJob once system shutdown has
// begun (spec.md §7 "Shutdown: ... new Print-Job refused with
// server-error-service-unavailable").
var ErrServiceUnavailable = errors.New("ipp: service unavailable, system is shutting down")

// Backend is everything an operation handler needs from the running
// system, kept narrow and interface-typed so internal/ipp has no import-time
// dependency on internal/core (which will assemble the concrete
// implementation from internal/printer, internal/job, and
// internal/subscription).
type Backend interface {
	// PrintJob validates job-attrs, creates a job on the named (or
	// default) printer, spools docData, and returns the created job's id
	// and attributes (spec.md §4.F Print-Job).
	PrintJob(ctx context.Context, req JobSubmission) (JobResult, error)

	ValidateJob(ctx context.Context, req JobSubmission) error

	CancelJob(ctx context.Context, printerURI string, jobID int) error

	GetJobAttributes(ctx context.Context, printerURI string, jobID int) (JobResult, error)

	GetJobs(ctx context.Context, printerURI string, whichJobs string, myJobsOnly bool, limit int) ([]JobResult, error)

	CreatePrinter(ctx context.Context, req PrinterCreateRequest) (PrinterResult, error)

	DeletePrinter(ctx context.Context, printerURI string) error

	SetPrinterAttributes(ctx context.Context, printerURI string, attrs goipp.Attributes) error

	GetPrinterAttributes(ctx context.Context, printerURI string, requested []string) (PrinterResult, error)

	GetPrinters(ctx context.Context) ([]PrinterResult, error)

	GetSystemAttributes(ctx context.Context, requested []string) (goipp.Attributes, error)

	SetSystemAttributes(ctx context.Context, attrs goipp.Attributes) error

	ShutdownAllPrinters(ctx context.Context) error

	CreateSubscriptions(ctx context.Context, req SubscriptionCreateRequest) (SubscriptionCreateResult, error)

	GetSubscriptions(ctx context.Context, ownerURI string) ([]SubscriptionResult, error)

	GetSubscriptionAttributes(ctx context.Context, subID int) (SubscriptionResult, error)

	RenewSubscription(ctx context.Context, subID, leaseSeconds int) error

	CancelSubscription(ctx context.Context, subID int) error

	GetNotifications(ctx context.Context, req NotificationsRequest) (NotificationResult, error)
}

// Principal identifies the authenticated (or anonymous) caller, threaded
// through the context by internal/httpserver after authz runs (spec.md
// §4.G).
type Principal struct {
	Username string
	IsAdmin  bool
}

type principalKey struct{}

// WithPrincipal attaches p to ctx for handlers to read via PrincipalFrom.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the Principal WithPrincipal attached, or the zero
// value (anonymous) if none was set.
func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}
