package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/aarthig0611/face-recognition-app/internal/constants"
	"github.com/aarthig0611/face-recognition-app/internal/detector"
	"github.com/aarthig0611/face-recognition-app/internal/session"
)

// AnalyzeHandler runs face resolution on a single uploaded photo.
type AnalyzeHandler struct {
	manager *session.Manager
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(manager *session.Manager) *AnalyzeHandler {
	return &AnalyzeHandler{manager: manager}
}

// Analyze accepts a multipart "file" field or a raw image body.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	data, ok := readImage(w, r)
	if !ok {
		return
	}

	if _, err := h.manager.EnsureGallery(r.Context()); err != nil {
		log.Warnf("web: analyzing against the current gallery: %v", err)
	}

	analysis, err := h.manager.Analyze(r.Context(), data)
	if err != nil {
		if errors.Is(err, detector.ErrCircuitOpen) {
			respondError(w, http.StatusServiceUnavailable, "face detector unavailable")
			return
		}
		log.Errorf("web: analyze failed: %v", err)
		respondError(w, http.StatusBadGateway, "face detection failed")
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

// readImage reads an image from a multipart "file" field or from the raw
// request body, limited to MaxUploadSize.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)

	var data []byte
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
			respondError(w, http.StatusBadRequest, "failed to parse multipart form")
			return nil, false
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			respondError(w, http.StatusBadRequest, "no file provided")
			return nil, false
		}
		defer file.Close()
		if data, err = io.ReadAll(file); err != nil {
			respondError(w, http.StatusBadRequest, "failed to read file")
			return nil, false
		}
	} else {
		var err error
		if data, err = io.ReadAll(r.Body); err != nil {
			respondError(w, http.StatusRequestEntityTooLarge, "image too large")
			return nil, false
		}
	}

	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "no image provided")
		return nil, false
	}
	return data, true
}
