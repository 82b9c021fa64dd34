package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/aarthig0611/face-recognition-app/internal/constants"
	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/registration"
	"github.com/aarthig0611/face-recognition-app/internal/session"
)

const (
	errMissingFields = "Missing name or descriptor"
	errAlreadyKnown  = "Already processed this unknown face"
)

// RegisterHandler turns an unresolved face into a known identity.
type RegisterHandler struct {
	manager *session.Manager
}

// NewRegisterHandler creates a new register handler.
func NewRegisterHandler(manager *session.Manager) *RegisterHandler {
	return &RegisterHandler{manager: manager}
}

// registerRequest is the JSON body. Descriptor may be an array or a string
// holding a JSON array; the image may come as image or imageBase64.
type registerRequest struct {
	Name        string          `json:"name"`
	Descriptor  json.RawMessage `json:"descriptor"`
	Image       string          `json:"image"`
	ImageBase64 string          `json:"imageBase64"`
}

// Register handles both JSON and form-encoded registrations.
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)

	req, ok := parseRegisterRequest(w, r)
	if !ok {
		return
	}

	res, err := h.manager.Register(r.Context(), req)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "registration": res})
	case res != nil:
		// stored, but the in-memory gallery could not be refreshed
		respondJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"registration": res,
			"warning":      "registered, but the gallery reload failed",
		})
	case errors.Is(err, registration.ErrDuplicate):
		respondError(w, http.StatusConflict, errAlreadyKnown)
	case errors.Is(err, registration.ErrValidation), errors.Is(err, embedding.ErrDimensionMismatch), errors.Is(err, embedding.ErrInvalidValue):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		var perr *database.PersistenceError
		if errors.As(err, &perr) {
			log.Errorf("web: registration of %q failed: %v", sanitizeForLog(req.Name), err)
			respondError(w, http.StatusInternalServerError, "failed to save registration")
			return
		}
		log.Errorf("web: registration failed: %v", err)
		respondError(w, http.StatusInternalServerError, "registration failed")
	}
}

func parseRegisterRequest(w http.ResponseWriter, r *http.Request) (registration.Request, bool) {
	var (
		name, image string
		descriptor  []byte
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return registration.Request{}, false
		}
		name = r.FormValue("name")
		descriptor = []byte(r.FormValue("descriptor"))
		image = r.FormValue("imageBase64")
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return registration.Request{}, false
		}
		var req registerRequest
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return registration.Request{}, false
		}
		name, descriptor, image = req.Name, req.Descriptor, req.Image
		if image == "" {
			image = req.ImageBase64
		}
	}

	if strings.TrimSpace(name) == "" || len(strings.TrimSpace(string(descriptor))) == 0 {
		respondError(w, http.StatusBadRequest, errMissingFields)
		return registration.Request{}, false
	}

	emb, err := parseDescriptor(descriptor)
	if err != nil || len(emb) == 0 {
		respondError(w, http.StatusBadRequest, errMissingFields)
		return registration.Request{}, false
	}

	photo, err := registration.DecodePhoto(image)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return registration.Request{}, false
	}

	return registration.Request{Name: name, Embedding: emb, Photo: photo}, true
}

// parseDescriptor accepts [0.1, ...] or "[0.1, ...]".
func parseDescriptor(raw []byte) (embedding.Embedding, error) {
	var e embedding.Embedding
	if err := json.Unmarshal(raw, &e); err == nil {
		return e, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = []byte(s)
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return e, nil
}
