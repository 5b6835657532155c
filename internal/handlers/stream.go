package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Stream sends every card change as a server-sent event. The first events
// carry the current view of each card; a comment line keeps idle
// connections open.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusBadRequest)
		return
	}
	heartbeat := time.Duration(parseIntParam(r.URL.Query().Get("heartbeat"), 15, 5, 120)) * time.Second

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, unsubscribe := a.dash.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(upd)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: card\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": ping %s\n\n", nowISO())
			flusher.Flush()
		}
	}
}
