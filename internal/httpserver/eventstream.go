package httpserver

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	commonws "github.com/michaelrsweet/pappl-sub004/common/ws"
)

// subscriptionEventMessageType tags a broadcast subscription event on the
// "/events" live websocket feed.
const subscriptionEventMessageType = "subscription_event"

// broadcastEvent is installed as the System's event tap (NewAdminMux) and
// fans every published subscription event out to every connected "/events"
// viewer via a.hub.
func (a *AdminMux) broadcastEvent(ownerKind string, ownerID int, kind string, attrs map[string]interface{}) {
	a.hub.Broadcast(commonws.Message{
		Type: subscriptionEventMessageType,
		Data: map[string]interface{}{
			"owner-kind": ownerKind,
			"owner-id":   ownerID,
			"event":      kind,
			"attrs":      attrs,
		},
	})
}

// handleEvents upgrades the connection and registers it with a.hub so it
// receives every subsequent subscription event until it disconnects
// (spec.md §4.E's event model, surfaced live to the admin UI rather than
// requiring a browser to poll Get-Notifications itself).
func (a *AdminMux) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := commonws.UpgradeHTTP(w, r)
	if err != nil {
		a.log.Warn("httpserver: events upgrade failed", "err", err.Error())
		return
	}
	defer conn.Close()

	id := fmt.Sprintf("events-%d", atomic.AddInt64(&a.nextEventClient, 1))
	ch := make(chan commonws.Message, 10)
	a.hub.Register(id, ch)
	defer a.hub.Unregister(id)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(&msg, 5*time.Second); err != nil {
				return
			}
		case <-readDone:
			return
		}
	}
}
