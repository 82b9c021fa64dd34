package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aarthig0611/face-recognition-app/internal/session"
)

// sendSSEEvent writes one server-sent event and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Errorf("web: encoding %s event: %v", event, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// setupSSEConnection validates the request, finds the session, and sets up SSE headers.
// A finished session is answered with its report as a single event.
func setupSSEConnection(w http.ResponseWriter, r *http.Request, manager *session.Manager) (string, http.Flusher, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing session ID")
		return "", nil, false
	}

	_, live := manager.Session(id)
	report, err := manager.Report(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return "", nil, false
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return "", nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if !live {
		at := report.StartedAt
		if report.EndedAt != nil {
			at = *report.EndedAt
		}
		sendSSEEvent(w, flusher, string(session.EventSessionReport), session.Event{
			Type:      session.EventSessionReport,
			SessionID: id,
			At:        at,
			Report:    report,
		})
		return "", nil, false
	}
	return id, flusher, true
}

// streamSessionEvents streams the events of one session until its report is
// sent, the client disconnects, or the listener is closed.
func streamSessionEvents(w http.ResponseWriter, r *http.Request, manager *session.Manager, b *session.Broadcaster) {
	eventCh := b.AddListener()
	defer b.RemoveListener(eventCh)

	id, flusher, ok := setupSSEConnection(w, r, manager)
	if !ok {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if event.SessionID != id {
				continue
			}
			sendSSEEvent(w, flusher, string(event.Type), event)
			if event.Type == session.EventSessionReport {
				return
			}
		}
	}
}
