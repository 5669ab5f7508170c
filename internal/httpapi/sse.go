package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// sseHeartbeatInterval paces comment frames that keep intermediary
// proxies from closing an idle tool stream.
const sseHeartbeatInterval = 15 * time.Second

// handleToolStream serves GET /director/tool-stream?workflowId=… as a
// Server-Sent Events stream of tool-call lifecycle events. The stream
// stays open until the client disconnects.
func (s *Server) handleToolStream(w http.ResponseWriter, r *http.Request) {
	workflowID := r.URL.Query().Get("workflowId")
	if workflowID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("workflowId query parameter is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported by this connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := s.Events.Subscribe(workflowID)
	defer unsubscribe()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				s.Logger.Error("marshal tool event failed", "error", err)
				continue
			}
			if _, err := w.Write([]byte("event: " + string(event.Event) + "\ndata: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
