package subscription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRejectsOversizedNotifyUserData(t *testing.T) {
	e := NewEngine(10)
	_, err := e.Create(CreateRequest{
		Owner:          OwnerPrinter,
		OwnerID:        1,
		Events:         []string{"job-completed"},
		NotifyUserData: make([]byte, 64),
	})
	assert.Error(t, err)
}

func TestFilterEventsPartitionsUnsupported(t *testing.T) {
	supported, unsupported := FilterEvents([]string{"job-completed", "bogus-event", "all"})
	assert.ElementsMatch(t, []string{"job-completed", "all"}, supported)
	assert.ElementsMatch(t, []string{"bogus-event"}, unsupported)
}

func TestRingEvictionAdvancesFirstSequence(t *testing.T) {
	e := NewEngine(3)
	sub, err := e.Create(CreateRequest{Owner: OwnerPrinter, OwnerID: 1, Events: []string{"all"}})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		e.Publish(OwnerPrinter, 1, "job-completed", nil)
	}

	events, last := sub.EventsSince(0)
	assert.Len(t, events, 3, "ring caps at capacity")
	assert.Equal(t, 5, last)
	assert.Equal(t, 3, sub.FirstSequence(), "eviction must advance first_sequence")
}

func TestSequenceNumbersAreDenseAcrossSubscriptions(t *testing.T) {
	e := NewEngine(100)
	subA, err := e.Create(CreateRequest{Owner: OwnerPrinter, OwnerID: 1, Events: []string{"all"}})
	require.NoError(t, err)
	subB, err := e.Create(CreateRequest{Owner: OwnerPrinter, OwnerID: 2, Events: []string{"all"}})
	require.NoError(t, err)

	e.Publish(OwnerPrinter, 1, "job-completed", nil)
	e.Publish(OwnerPrinter, 2, "job-completed", nil)
	e.Publish(OwnerPrinter, 1, "job-completed", nil)

	eventsA, _ := subA.EventsSince(0)
	eventsB, _ := subB.EventsSince(0)
	require.Len(t, eventsA, 2)
	require.Len(t, eventsB, 1)
	assert.Equal(t, 1, eventsA[0].Sequence)
	assert.Equal(t, 3, eventsA[1].Sequence)
	assert.Equal(t, 2, eventsB[0].Sequence)
}

func TestGetNotificationsBlocksUntilPublish(t *testing.T) {
	e := NewEngine(10)
	sub, err := e.Create(CreateRequest{Owner: OwnerSystem, OwnerID: 0, Events: []string{"all"}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var events []Event
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		events, _, _ = e.GetNotifications(ctx, sub.ID, 0, true)
	}()

	time.Sleep(50 * time.Millisecond)
	e.Publish(OwnerSystem, 0, "system-state-changed", nil)
	wg.Wait()

	require.Len(t, events, 1)
	assert.Equal(t, "system-state-changed", events[0].Kind)
}

func TestGetNotificationsReturnsEmptyOnTimeoutNotHang(t *testing.T) {
	e := NewEngine(10)
	sub, err := e.Create(CreateRequest{Owner: OwnerSystem, OwnerID: 0, Events: []string{"all"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	events, _, err := e.GetNotifications(ctx, sub.ID, 0, true)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGetNotificationsNoWaitReturnsImmediately(t *testing.T) {
	e := NewEngine(10)
	sub, err := e.Create(CreateRequest{Owner: OwnerSystem, OwnerID: 0, Events: []string{"all"}})
	require.NoError(t, err)

	start := time.Now()
	events, last, err := e.GetNotifications(context.Background(), sub.ID, 0, false)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, last)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	e.Publish(OwnerSystem, 0, "system-state-changed", nil)
	events, last, err = e.GetNotifications(context.Background(), sub.ID, 0, false)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, last)
}

func TestCancelWakesBlockedGetNotifications(t *testing.T) {
	e := NewEngine(10)
	sub, err := e.Create(CreateRequest{Owner: OwnerSystem, OwnerID: 0, Events: []string{"all"}})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.GetNotifications(ctx, sub.ID, 0, true)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, e.Cancel(sub.ID))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not wake blocked Get-Notifications")
	}
}
