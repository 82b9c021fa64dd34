package handlers

import (
	"net/http"

	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/session"
)

// GalleryHandler serves the known identities.
type GalleryHandler struct {
	manager *session.Manager
	store   database.GalleryReader
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(manager *session.Manager, store database.GalleryReader) *GalleryHandler {
	return &GalleryHandler{manager: manager, store: store}
}

// Descriptors returns every identity with its reference embeddings. An empty
// gallery is (re)loaded from the store first.
func (h *GalleryHandler) Descriptors(w http.ResponseWriter, r *http.Request) {
	g, err := h.manager.EnsureGallery(r.Context())
	if err != nil {
		log.Errorf("web: loading gallery: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load descriptors")
		return
	}
	respondJSON(w, http.StatusOK, g.Identities())
}

// IdentitySummary is one label with its number of reference embeddings.
type IdentitySummary struct {
	Label      string `json:"label"`
	Embeddings int    `json:"embeddings"`
}

// Identities lists labels with embedding counts, as held in memory and as
// stored.
func (h *GalleryHandler) Identities(w http.ResponseWriter, r *http.Request) {
	g := h.manager.Matcher().Snapshot()

	items := make([]IdentitySummary, 0, g.Len())
	for _, label := range g.Labels() {
		id, _ := g.Lookup(label)
		items = append(items, IdentitySummary{Label: label, Embeddings: len(id.Embeddings)})
	}

	resp := map[string]any{
		"identities": items,
		"loaded": map[string]int{
			"identities": g.Len(),
			"embeddings": g.EmbeddingCount(),
		},
	}
	if h.store != nil {
		ids, embs, err := h.store.Count(r.Context())
		if err != nil {
			log.Warnf("web: counting stored identities: %v", err)
		} else {
			resp["stored"] = map[string]int{"identities": ids, "embeddings": embs}
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// Reload re-reads the store and rebuilds the matcher.
func (h *GalleryHandler) Reload(w http.ResponseWriter, r *http.Request) {
	g, err := h.manager.LoadGallery(r.Context())
	if err != nil {
		log.Errorf("web: reloading gallery: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to reload gallery")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"identities": g.Len(),
		"embeddings": g.EmbeddingCount(),
	})
}
