package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"fleetd/internal/fleet"
)

// sseHeartbeat keeps intermediaries from closing an idle event stream.
const sseHeartbeat = 15 * time.Second

// eventsHandler streams orchestrator events as Server-Sent Events.
// Delivery is at-most-once with no replay: a client connecting after an
// event has missed it permanently, and a client that stops reading is
// dropped by the broadcaster rather than slowing the others down.
func eventsHandler(sub Subscriber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ch, unsubscribe := sub.Subscribe(64)
		defer unsubscribe()

		heartbeat := time.NewTicker(sseHeartbeat)
		defer heartbeat.Stop()

		joined, cancel := requestCtx(r)
		defer cancel()

		for {
			select {
			case <-joined.Done():
				return
			case <-heartbeat.C:
				if _, err := w.Write([]byte(": ping\n\n")); err != nil {
					return
				}
				flusher.Flush()
			case ev, open := <-ch:
				if !open {
					return
				}
				if err := writeSSE(w, ev); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, ev fleet.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + ev.Type + "\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
