package streaming

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ServeSSE drains session over w as Server-Sent Events, one
// `event: <type>\ndata: <json>\n\n` block per wire event, until the
// session closes or the request context is cancelled. The caller is
// responsible for creating the session (via Fabric.Start) and for any
// auth/tenant checks before calling this.
func ServeSSE(w http.ResponseWriter, r *http.Request, session *Session, logger *zap.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			session.CloseWithError("cancelled", "client disconnected")
			return
		case ev, ok := <-session.Events():
			if !ok {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				logger.Warn("sse write failed", zap.String("session_id", session.ID), zap.Error(err))
				return
			}
			session.MarkDelivered()
			flusher.Flush()
			if ev.Type == EventDone || ev.Type == EventError {
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
