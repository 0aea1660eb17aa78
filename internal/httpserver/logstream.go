package httpserver

import (
	"net/http"
	"time"

	commonws "github.com/michaelrsweet/pappl-sub004/common/ws"
	"github.com/michaelrsweet/pappl-sub004/internal/corelog"
)

// logEntryMessageType tags a streamed corelog.Entry on the /logfile.txt
// live-tail websocket (spec.md §6 "/logfile.txt ... supports a live tail").
const logEntryMessageType = "log_entry"

// streamLogTail upgrades the connection and pushes every subsequent log
// entry to the client until it disconnects or the tap is replaced, using
// the teacher's common/ws wrapper (Conn.WriteMessage already serializes
// writes against gorilla's one-writer-at-a-time requirement).
func (a *AdminMux) streamLogTail(w http.ResponseWriter, r *http.Request) {
	conn, err := commonws.UpgradeHTTP(w, r)
	if err != nil {
		a.log.Warn("httpserver: log tail upgrade failed", "err", err.Error())
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	a.log.SetTap(func(e corelog.Entry) {
		msg := &commonws.Message{
			Type: logEntryMessageType,
			Data: map[string]interface{}{
				"level":   e.Level.String(),
				"message": e.Message,
			},
			Timestamp: e.Time,
		}
		if err := conn.WriteMessage(msg, 5*time.Second); err != nil {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	defer a.log.SetTap(nil)

	// Block on client reads so the handler (and its deferred cleanup)
	// returns once the browser navigates away or the write side fails.
	for {
		if _, err := conn.ReadMessage(); err != nil {
			return
		}
		select {
		case <-done:
			return
		default:
		}
	}
}
