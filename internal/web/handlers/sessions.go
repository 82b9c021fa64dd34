package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aarthig0611/face-recognition-app/internal/capture"
	"github.com/aarthig0611/face-recognition-app/internal/session"
)

// Source kinds accepted when starting a session.
const (
	SourcePush      = "push"
	SourceSnapshot  = "snapshot"
	SourceDirectory = "directory"
)

// SessionsHandler starts, feeds, stops and streams capture sessions.
type SessionsHandler struct {
	manager     *session.Manager
	broadcaster *session.Broadcaster
	replayRoot  string
	snapTimeout time.Duration
}

// NewSessionsHandler creates a new sessions handler. Directory sources are
// only accepted when replayRoot is set, and are resolved below it.
func NewSessionsHandler(manager *session.Manager, broadcaster *session.Broadcaster, replayRoot string, snapshotTimeout time.Duration) *SessionsHandler {
	return &SessionsHandler{
		manager:     manager,
		broadcaster: broadcaster,
		replayRoot:  replayRoot,
		snapTimeout: snapshotTimeout,
	}
}

// StartSessionRequest selects the frame source of a new session.
type StartSessionRequest struct {
	Source string `json:"source"`
	URL    string `json:"url,omitempty"`
	Dir    string `json:"dir,omitempty"`
}

// Start begins a capture session.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}

	src, msg := h.newSource(req)
	if src == nil {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if _, err := h.manager.EnsureGallery(r.Context()); err != nil {
		log.Warnf("web: starting session with the current gallery: %v", err)
	}

	o, err := h.manager.Start(r.Context(), src)
	switch {
	case err == nil:
		respondJSON(w, http.StatusCreated, o.Status())
	case errors.Is(err, session.ErrSessionActive):
		respondError(w, http.StatusConflict, "a capture session is already active")
	case errors.Is(err, capture.ErrDevice):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Errorf("web: starting session: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to start session")
	}
}

func (h *SessionsHandler) newSource(req StartSessionRequest) (capture.Source, string) {
	switch strings.ToLower(req.Source) {
	case "", SourcePush:
		return capture.NewPushSource(), ""
	case SourceSnapshot:
		if req.URL == "" {
			return nil, "url is required for snapshot sources"
		}
		return capture.NewSnapshotSource(req.URL, h.snapTimeout), ""
	case SourceDirectory:
		if h.replayRoot == "" {
			return nil, "directory sources are disabled"
		}
		dir := filepath.Join(h.replayRoot, filepath.Clean(filepath.FromSlash("/"+req.Dir)))
		return capture.NewDirectorySource(dir), ""
	default:
		return nil, "unknown source " + req.Source
	}
}

// Current returns the status of the active session.
func (h *SessionsHandler) Current(w http.ResponseWriter, r *http.Request) {
	o := h.manager.Active()
	if o == nil {
		respondError(w, http.StatusNotFound, "no active session")
		return
	}
	respondJSON(w, http.StatusOK, o.Status())
}

// PushFrame stores a frame for the next tick of a push session.
func (h *SessionsHandler) PushFrame(w http.ResponseWriter, r *http.Request) {
	o, ok := h.manager.Session(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	push, ok := o.Source().(*capture.PushSource)
	if !ok {
		respondError(w, http.StatusConflict, "session does not accept pushed frames")
		return
	}

	data, ok := readImage(w, r)
	if !ok {
		return
	}
	if err := push.Push(data); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Stop ends a session and returns its report.
func (h *SessionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	report, err := h.manager.Stop(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Report returns the live or final report of a session.
func (h *SessionsHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.manager.Report(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Events streams the events of one session as server-sent events.
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSessionEvents(w, r, h.manager, h.broadcaster)
}
