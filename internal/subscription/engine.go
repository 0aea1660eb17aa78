package subscription

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MaxGetNotificationsWait is the longest a Get-Notifications call blocks
// before returning with whatever (possibly zero) events are available
// (spec.md §4.E "Get-Notifications ... blocks up to 30 seconds").
const MaxGetNotificationsWait = 30 * time.Second

// Engine owns every live subscription and the single condition variable
// subscribers wait on; Publish broadcasts it once per call so every blocked
// Get-Notifications wakes and re-checks its own ring (spec.md §4.E
// "system-wide wake", grounded on the teacher's ws.Hub broadcast-to-many
// pattern translated from channels to a condition variable since callers
// here block synchronously inside an IPP request handler rather than
// reading from a channel).
type Engine struct {
	mu     sync.Mutex
	cond   *sync.Cond
	subs   map[int]*Subscription
	nextID int
	ringCap int
	seq    int

	tap func(ownerKind OwnerKind, ownerID int, kind string, attrs map[string]interface{})
}

// NewEngine creates an empty Engine with the given default per-subscription
// ring capacity (spec.md open question: "MAX_EVENTS defaults to
// Config.MaxEvents").
func NewEngine(ringCap int) *Engine {
	e := &Engine{
		subs:    make(map[int]*Subscription),
		nextID:  1,
		ringCap: ringCap,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// CreateRequest is the input to Create-{Job,Printer,System}-Subscriptions
// (spec.md §4.E).
type CreateRequest struct {
	Owner          OwnerKind
	OwnerID        int
	Events         []string
	NotifyUserData []byte
	LeaseSeconds   int
}

// ErrAllEventsIgnored corresponds to the IPP status
// client-error-ignored-all-subscriptions: every requested event keyword is
// unsupported, so nothing was created (spec.md §4.E).
var ErrAllEventsIgnored = fmt.Errorf("subscription: all requested events ignored")

// supportedEvents is the event keyword vocabulary this engine recognizes
// (spec.md §4.E); "all" is the wildcard used by Interested.
var supportedEvents = map[string]bool{
	"all": true,

	"job-created": true, "job-completed": true, "job-state-changed": true,
	"job-stopped": true, "job-config-changed": true, "job-progress": true,

	"printer-state-changed": true, "printer-stopped": true,
	"printer-config-changed": true, "printer-media-changed": true,
	"printer-finishings-changed": true, "printer-queue-order-changed": true,
	"printer-restarted": true, "printer-shutdown": true,

	"system-state-changed": true, "system-config-changed": true,
}

// FilterEvents partitions requested keywords into supported and unsupported
// sets; used by Create to decide between success, partial-success, and the
// all-ignored rejection (spec.md §4.E).
func FilterEvents(requested []string) (supported, unsupported []string) {
	for _, r := range requested {
		if supportedEvents[r] {
			supported = append(supported, r)
		} else {
			unsupported = append(unsupported, r)
		}
	}
	return
}

// Create registers a new subscription. Callers must call FilterEvents
// first: Create itself does not reject unsupported keywords, so a handler
// can still create on the supported subset and report
// successful-ok-ignored-subscriptions for the rest.
func (e *Engine) Create(req CreateRequest) (*Subscription, error) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.mu.Unlock()

	sub, err := newSubscription(id, req.Owner, req.OwnerID, req.Events, req.NotifyUserData, req.LeaseSeconds, e.ringCap)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.subs[id] = sub
	e.mu.Unlock()
	return sub, nil
}

// Get returns the subscription by id, or (nil, false).
func (e *Engine) Get(id int) (*Subscription, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.subs[id]
	return s, ok
}

// ListForOwner returns every non-canceled subscription attached to
// (owner, ownerID), sorted by id.
func (e *Engine) ListForOwner(owner OwnerKind, ownerID int) []*Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*Subscription
	for _, s := range e.subs {
		if s.Owner == owner && s.OwnerID == ownerID && !s.Canceled() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cancel marks a subscription canceled and wakes anyone blocked on it
// (spec.md §4.E Cancel-Subscription).
func (e *Engine) Cancel(id int) error {
	e.mu.Lock()
	sub, ok := e.subs[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("subscription: %d not found", id)
	}
	sub.mu.Lock()
	sub.canceled = true
	sub.mu.Unlock()

	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()
	return nil
}

// SetTap installs (or, with nil, removes) a callback invoked once per
// Publish with the raw event, mirroring corelog.Logger's SetTap. Used to
// fan events out to live admin-UI viewers without those viewers polling
// Get-Notifications themselves.
func (e *Engine) SetTap(tap func(ownerKind OwnerKind, ownerID int, kind string, attrs map[string]interface{})) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tap = tap
}

// Publish appends ev (after stamping Sequence and Timestamp) to every
// subscription interested in (ownerKind, ownerID, kind), then wakes every
// blocked Get-Notifications call once (spec.md §4.E).
func (e *Engine) Publish(ownerKind OwnerKind, ownerID int, kind string, attrs map[string]interface{}) {
	e.mu.Lock()
	e.seq++
	ev := Event{Sequence: e.seq, Kind: kind, Attrs: attrs, Timestamp: time.Now()}
	var matched []*Subscription
	for _, s := range e.subs {
		if s.Interested(kind, ownerKind, ownerID) {
			matched = append(matched, s)
		}
	}
	e.mu.Unlock()

	for _, s := range matched {
		s.append(ev)
	}

	e.mu.Lock()
	tap := e.tap
	e.cond.Broadcast()
	e.mu.Unlock()

	if tap != nil {
		tap(ownerKind, ownerID, kind, attrs)
	}
}

// GetNotifications returns subID's events after afterSeq. When wait is true
// it blocks up to MaxGetNotificationsWait for at least one to arrive
// (spec.md §4.E "Get-Notifications ... blocks up to 30 seconds"); when wait
// is false (the client omitted notify-wait, or set it to false) it returns
// immediately with whatever is already buffered.
func (e *Engine) GetNotifications(ctx context.Context, subID, afterSeq int, wait bool) ([]Event, int, error) {
	sub, ok := e.Get(subID)
	if !ok {
		return nil, afterSeq, fmt.Errorf("subscription: %d not found", subID)
	}

	if !wait {
		events, last := sub.EventsSince(afterSeq)
		return events, last, nil
	}

	ctx, cancel := context.WithTimeout(ctx, MaxGetNotificationsWait)
	defer cancel()

	events, last := sub.waitForEvents(ctx, e.cond, afterSeq)
	return events, last, nil
}

// PruneExpired drops every subscription whose lease has elapsed, returning
// how many were removed. Callers run this periodically (spec.md §4.E
// expiry is passive: a subscription past its lease is simply gone).
func (e *Engine) PruneExpired() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, s := range e.subs {
		if s.Expired() || s.Canceled() {
			delete(e.subs, id)
			n++
		}
	}
	return n
}
