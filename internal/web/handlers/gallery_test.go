package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aarthig0611/face-recognition-app/internal/gallery"
)

func TestHealthCheck(t *testing.T) {
	recorder := httptest.NewRecorder()
	HealthCheck(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", result["status"])
	}
}

func TestGalleryHandler_DescriptorsLoadsLazily(t *testing.T) {
	m, store := newTestManager(t, nil)
	h := NewGalleryHandler(m, store)

	if m.Matcher().Snapshot().Len() != 0 {
		t.Fatal("expected gallery to start empty")
	}

	recorder := httptest.NewRecorder()
	h.Descriptors(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/descriptors", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result []gallery.LabeledIdentity
	parseJSONResponse(t, recorder, &result)
	if len(result) != 1 || result[0].Label != "Bob" {
		t.Fatalf("expected Bob, got %+v", result)
	}
	if len(result[0].Embeddings) != 1 || len(result[0].Embeddings[0]) != 128 {
		t.Errorf("expected one 128-d descriptor, got %d", len(result[0].Embeddings))
	}
	if m.Matcher().Snapshot().Len() != 1 {
		t.Error("expected the matcher to be loaded")
	}
}

func TestGalleryHandler_DescriptorsStoreError(t *testing.T) {
	m, store := newTestManager(t, nil)
	store.LoadAllError = errors.New("disk gone")
	h := NewGalleryHandler(m, store)

	recorder := httptest.NewRecorder()
	h.Descriptors(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/descriptors", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to load descriptors")
}

func TestGalleryHandler_IdentitiesAndReload(t *testing.T) {
	m, store := newTestManager(t, nil)
	h := NewGalleryHandler(m, store)

	recorder := httptest.NewRecorder()
	h.Reload(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/gallery/reload", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var reloaded map[string]int
	parseJSONResponse(t, recorder, &reloaded)
	if reloaded["identities"] != 1 || reloaded["embeddings"] != 1 {
		t.Errorf("unexpected reload result %v", reloaded)
	}

	recorder = httptest.NewRecorder()
	h.Identities(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var result struct {
		Identities []IdentitySummary `json:"identities"`
		Stored     map[string]int    `json:"stored"`
	}
	parseJSONResponse(t, recorder, &result)
	if len(result.Identities) != 1 || result.Identities[0] != (IdentitySummary{Label: "Bob", Embeddings: 1}) {
		t.Errorf("unexpected identities %+v", result.Identities)
	}
	if result.Stored["embeddings"] != 1 {
		t.Errorf("expected 1 stored embedding, got %v", result.Stored)
	}
}
