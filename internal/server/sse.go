package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ryandam9/gemma-chatd/internal/events"
)

// handleEvents streams session lifecycle events as server-sent events
// for monitoring dashboards. The stream ends when the client goes away
// or the bus closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	var ch chan *events.Event
	if s.bus != nil {
		// Subscribe before the headers go out so a client that has
		// seen the response start cannot miss events.
		ch = s.bus.Subscribe(r.RemoteAddr)
		defer s.bus.Unsubscribe(ch)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if ch == nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
