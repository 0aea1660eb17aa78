// Package subscription implements the event subscription and pull-model
// notification engine of spec.md §3/§4.E: subscriptions register interest
// in a set of event keywords against a system, printer, or job, events are
// appended to a bounded per-subscription ring, and Get-Notifications long
// polls for new events up to 30 seconds.
package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OwnerKind is what a subscription is attached to (spec.md §3
// "Subscription").
type OwnerKind int

const (
	OwnerSystem OwnerKind = iota
	OwnerPrinter
	OwnerJob
)

func (o OwnerKind) String() string {
	switch o {
	case OwnerPrinter:
		return "printer"
	case OwnerJob:
		return "job"
	default:
		return "system"
	}
}

// Event is one notification appended to a subscription's ring (spec.md §4.E).
type Event struct {
	Sequence  int
	Kind      string
	Attrs     map[string]interface{}
	Timestamp time.Time
}

const maxNotifyUserDataBytes = 63

// Subscription is one registered interest set plus its bounded event ring
// (spec.md §3 "Subscription"): pull_method is always "ippget" per spec.md
// §4.E ("push delivery methods are out of scope; only ippget is accepted").
type Subscription struct {
	ID           int
	UUID         string
	Owner        OwnerKind
	OwnerID      int
	Events       map[string]bool
	NotifyUserData []byte
	LeaseSeconds int

	mu            sync.RWMutex
	expiresAt     time.Time
	interval      time.Duration
	lastNotify    time.Time
	ring          []Event
	ringCap       int
	firstSequence int
	canceled      bool
}

// newSubscription builds a Subscription with a ring capacity of ringCap
// (spec.md open question resolved in SPEC_FULL.md: "MAX_EVENTS defaults to
// Config.MaxEvents").
func newSubscription(id int, owner OwnerKind, ownerID int, events []string, notifyUserData []byte, leaseSeconds, ringCap int) (*Subscription, error) {
	if len(notifyUserData) > maxNotifyUserDataBytes {
		return nil, fmt.Errorf("subscription: notify-user-data exceeds %d octets", maxNotifyUserDataBytes)
	}
	if ringCap <= 0 {
		ringCap = 100
	}
	if leaseSeconds <= 0 {
		leaseSeconds = 0 // 0 means no expiry
	}

	evSet := make(map[string]bool, len(events))
	for _, e := range events {
		evSet[e] = true
	}

	s := &Subscription{
		ID:             id,
		UUID:           uuid.NewString(),
		Owner:          owner,
		OwnerID:        ownerID,
		Events:         evSet,
		NotifyUserData: notifyUserData,
		LeaseSeconds:   leaseSeconds,
		ringCap:        ringCap,
		firstSequence:  1,
	}
	if leaseSeconds > 0 {
		s.expiresAt = time.Now().Add(time.Duration(leaseSeconds) * time.Second)
	}
	return s, nil
}

// Expired reports whether the subscription's lease has elapsed.
func (s *Subscription) Expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.expiresAt.IsZero() && time.Now().After(s.expiresAt)
}

// Canceled reports whether Cancel-Subscription has been applied.
func (s *Subscription) Canceled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canceled
}

// Renew extends the lease by leaseSeconds from now (spec.md §4.E
// Renew-Subscription). leaseSeconds of 0 clears the expiry.
func (s *Subscription) Renew(leaseSeconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if leaseSeconds <= 0 {
		s.expiresAt = time.Time{}
		return
	}
	s.expiresAt = time.Now().Add(time.Duration(leaseSeconds) * time.Second)
}

// Interested reports whether this subscription wants event kind emitted by
// (ownerKind, ownerID).
func (s *Subscription) Interested(kind string, ownerKind OwnerKind, ownerID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.canceled || ownerKind != s.Owner || ownerID != s.OwnerID {
		return false
	}
	return s.Events[kind] || s.Events["all"]
}

// append adds ev to the ring, evicting the oldest entry and advancing
// firstSequence when the ring is full (spec.md §4.E "bounded events ring
// ... evicting the oldest entry advances first_sequence").
func (s *Subscription) append(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ring) >= s.ringCap {
		s.ring = s.ring[1:]
		s.firstSequence++
	}
	s.ring = append(s.ring, ev)
}

// EventsSince returns every buffered event with Sequence > afterSeq, plus
// the last sequence number currently buffered.
func (s *Subscription) EventsSince(afterSeq int) ([]Event, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	last := afterSeq
	for _, e := range s.ring {
		if e.Sequence > afterSeq {
			out = append(out, e)
		}
		last = e.Sequence
	}
	return out, last
}

// FirstSequence returns the oldest sequence number still buffered.
func (s *Subscription) FirstSequence() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firstSequence
}

// waitForEvents blocks on cond until a new event lands after afterSeq, the
// subscription is canceled, or ctx is done.
func (s *Subscription) waitForEvents(ctx context.Context, cond *sync.Cond, afterSeq int) ([]Event, int) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cond.L.Lock()
			cond.Broadcast()
			cond.L.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	cond.L.Lock()
	defer cond.L.Unlock()
	for {
		events, last := s.eventsSinceLocked(afterSeq)
		if len(events) > 0 || s.Canceled() || ctx.Err() != nil {
			return events, last
		}
		cond.Wait()
	}
}

func (s *Subscription) eventsSinceLocked(afterSeq int) ([]Event, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	last := afterSeq
	for _, e := range s.ring {
		if e.Sequence > afterSeq {
			out = append(out, e)
		}
		last = e.Sequence
	}
	return out, last
}
