package ipp

import (
	"io"
	"time"

	"github.com/alexpevzner/goipp"
)

// JobSubmission is the normalized input to Print-Job and Validate-Job
// (spec.md §4.F), decoded from the request's operation/job attribute groups
// and multipart document body.
type JobSubmission struct {
	PrinterURI string
	JobName    string
	Requester  string
	Format     string
	JobAttrs   goipp.Attributes
	Document   io.Reader
}

// JobResult is the normalized shape returned for a single job across
// Print-Job, Get-Job-Attributes, and Get-Jobs (spec.md §4.F).
type JobResult struct {
	ID           int
	PrinterURI   string
	State        int // ipp job-state enum value
	StateReasons []string
	Name         string
	Created      time.Time
	Impressions  int
	Message      string
}

// PrinterCreateRequest is the normalized input to Create-Printer (spec.md
// §4.D Create-Printer validation rules).
type PrinterCreateRequest struct {
	Name      string
	DeviceURI string
	DriverID  string
}

// PrinterResult is the normalized printer-description attribute set
// returned by Create-Printer and Get-Printer-Attributes (spec.md §4.D).
type PrinterResult struct {
	URI          string
	Name         string
	State        int
	StateReasons []string
	IsAccepting  bool
	IsDefault    bool
	DeviceURI    string
	Attrs        goipp.Attributes
}

// SubscriptionCreateRequest is the normalized input to
// Create-{Job,Printer,System}-Subscriptions (spec.md §4.E).
type SubscriptionCreateRequest struct {
	OwnerURI       string
	Events         []string
	NotifyUserData []byte
	LeaseSeconds   int
}

// SubscriptionCreateResult reports which events were actually subscribed to
// versus silently dropped, so the handler can choose between
// successful-ok, successful-ok-ignored-subscriptions, and
// client-error-ignored-all-subscriptions (spec.md §4.E).
type SubscriptionCreateResult struct {
	SubscriptionID    int
	AcceptedEvents    []string
	UnsupportedEvents []string
}

// SubscriptionResult mirrors a subscription's description attributes
// (spec.md §4.F Get-Subscription-Attributes).
type SubscriptionResult struct {
	ID            int
	Events        []string
	LeaseSeconds  int
	FirstSequence int
}

// NotificationsRequest is the normalized input to Get-Notifications
// (spec.md §4.E): one or more subscription ids, each paired with the
// client-supplied notify-sequence-numbers value to report events after, and
// notify-wait controlling whether the call long-polls or returns whatever
// is already buffered.
type NotificationsRequest struct {
	SubscriptionIDs []int
	AfterSeq        map[int]int
	Wait            bool
}

// NotificationResult is the decoded outcome of a Get-Notifications call
// across however many subscription ids were requested (spec.md §4.F).
type NotificationResult struct {
	Events []NotificationEvent
}

// NotificationEvent is one event-notification-attributes group.
type NotificationEvent struct {
	SubscriptionID int
	Sequence       int
	Kind           string
	Attrs          map[string]interface{}
}
