package core

import (
	"context"
	"fmt"

	"github.com/michaelrsweet/pappl-sub004/internal/ipp"
	"github.com/michaelrsweet/pappl-sub004/internal/subscription"
)

// ownerOf resolves a Create-Subscriptions request's owning entity: a
// printer if ownerURI names one, else the system itself (spec.md §4.E
// "attached to a system, printer, or job").
func (s *System) ownerOf(ownerURI string) (subscription.OwnerKind, int) {
	if p, ok := s.lookupPrinterByURI(ownerURI); ok {
		return subscription.OwnerPrinter, p.ID
	}
	return subscription.OwnerSystem, 0
}

// CreateSubscriptions implements ipp.Backend (spec.md §4.E
// Create-{Job,Printer,System}-Subscriptions): filters unsupported event
// keywords, rejecting entirely only if every requested keyword is
// unsupported.
func (s *System) CreateSubscriptions(ctx context.Context, req ipp.SubscriptionCreateRequest) (ipp.SubscriptionCreateResult, error) {
	supported, unsupported := subscription.FilterEvents(req.Events)
	if len(req.Events) > 0 && len(supported) == 0 {
		return ipp.SubscriptionCreateResult{}, subscription.ErrAllEventsIgnored
	}

	owner, ownerID := s.ownerOf(req.OwnerURI)
	sub, err := s.subs.Create(subscription.CreateRequest{
		Owner:          owner,
		OwnerID:        ownerID,
		Events:         supported,
		NotifyUserData: req.NotifyUserData,
		LeaseSeconds:   req.LeaseSeconds,
	})
	if err != nil {
		return ipp.SubscriptionCreateResult{}, err
	}

	return ipp.SubscriptionCreateResult{
		SubscriptionID:    sub.ID,
		AcceptedEvents:    supported,
		UnsupportedEvents: unsupported,
	}, nil
}

func (s *System) GetSubscriptions(ctx context.Context, ownerURI string) ([]ipp.SubscriptionResult, error) {
	owner, ownerID := s.ownerOf(ownerURI)
	subs := s.subs.ListForOwner(owner, ownerID)
	out := make([]ipp.SubscriptionResult, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionResultOf(sub))
	}
	return out, nil
}

func (s *System) GetSubscriptionAttributes(ctx context.Context, subID int) (ipp.SubscriptionResult, error) {
	sub, ok := s.subs.Get(subID)
	if !ok {
		return ipp.SubscriptionResult{}, fmt.Errorf("core: subscription %d not found", subID)
	}
	return subscriptionResultOf(sub), nil
}

func (s *System) RenewSubscription(ctx context.Context, subID, leaseSeconds int) error {
	sub, ok := s.subs.Get(subID)
	if !ok {
		return fmt.Errorf("core: subscription %d not found", subID)
	}
	sub.Renew(leaseSeconds)
	return nil
}

func (s *System) CancelSubscription(ctx context.Context, subID int) error {
	return s.subs.Cancel(subID)
}

// GetNotifications implements ipp.Backend (spec.md §4.E Get-Notifications).
// The "after" sequence for each subscription id comes from the request's
// own notify-sequence-numbers, not server-side state: a call with
// notify-wait=true blocks up to 30 seconds per id for new events; without
// it, it returns immediately with whatever is already buffered.
func (s *System) GetNotifications(ctx context.Context, req ipp.NotificationsRequest) (ipp.NotificationResult, error) {
	var result ipp.NotificationResult
	for _, id := range req.SubscriptionIDs {
		after := req.AfterSeq[id]

		events, _, err := s.subs.GetNotifications(ctx, id, after, req.Wait)
		if err != nil {
			continue
		}
		for _, ev := range events {
			result.Events = append(result.Events, ipp.NotificationEvent{
				SubscriptionID: id,
				Sequence:       ev.Sequence,
				Kind:           ev.Kind,
				Attrs:          ev.Attrs,
			})
		}
	}
	return result, nil
}

func subscriptionResultOf(sub *subscription.Subscription) ipp.SubscriptionResult {
	events := make([]string, 0, len(sub.Events))
	for e := range sub.Events {
		events = append(events, e)
	}
	return ipp.SubscriptionResult{
		ID:            sub.ID,
		Events:        events,
		LeaseSeconds:  sub.LeaseSeconds,
		FirstSequence: sub.FirstSequence(),
	}
}
