package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aarthig0611/face-recognition-app/internal/embedding"
)

func TestRegisterHandler_JSON(t *testing.T) {
	m, store := newTestManager(t, nil)
	h := NewRegisterHandler(m)

	body := map[string]any{"name": "Alice", "descriptor": vec(0.7), "image": pngDataURL(t)}

	recorder := httptest.NewRecorder()
	h.Register(recorder, jsonRequest(t, http.MethodPost, "/api/v1/register", body))
	assertStatusCode(t, recorder, http.StatusOK)

	var result struct {
		Success      bool `json:"success"`
		Registration struct {
			Label       string `json:"label"`
			NewIdentity bool   `json:"newIdentity"`
			PhotoStored bool   `json:"photoStored"`
		} `json:"registration"`
	}
	parseJSONResponse(t, recorder, &result)
	if !result.Success || result.Registration.Label != "Alice" || !result.Registration.NewIdentity || !result.Registration.PhotoStored {
		t.Errorf("unexpected result %+v", result)
	}

	match, err := m.Matcher().FindBestMatch(vec(0.7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.Label != "Alice" {
		t.Errorf("expected the gallery to know Alice, got %s", match.Label)
	}

	regs := store.Registrations()
	if len(regs[len(regs)-1].Photo) == 0 || regs[len(regs)-1].PhotoExt != "png" {
		t.Error("expected the photo to be stored as png")
	}

	// Same descriptor again.
	recorder = httptest.NewRecorder()
	h.Register(recorder, jsonRequest(t, http.MethodPost, "/api/v1/register", body))
	assertStatusCode(t, recorder, http.StatusConflict)
	assertJSONError(t, recorder, errAlreadyKnown)
}

func TestRegisterHandler_Form(t *testing.T) {
	m, _ := newTestManager(t, nil)
	h := NewRegisterHandler(m)

	descriptor := `[` + strings.TrimSuffix(strings.Repeat("0.3,", 127), ",") + `,0.9]`
	form := url.Values{}
	form.Set("name", "Carol")
	form.Set("descriptor", descriptor)
	form.Set("imageBase64", pngDataURL(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	recorder := httptest.NewRecorder()
	h.Register(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	if labels := m.Matcher().Snapshot().Labels(); len(labels) != 2 || labels[1] != "Carol" {
		t.Errorf("expected Bob and Carol, got %v", labels)
	}
}

func TestRegisterHandler_DescriptorAsJSONString(t *testing.T) {
	m, _ := newTestManager(t, nil)
	h := NewRegisterHandler(m)

	descriptor := `[` + strings.TrimSuffix(strings.Repeat("0.4,", 127), ",") + `,0.8]`
	body := map[string]any{"name": "Dana", "descriptor": descriptor}

	recorder := httptest.NewRecorder()
	h.Register(recorder, jsonRequest(t, http.MethodPost, "/api/v1/register", body))
	assertStatusCode(t, recorder, http.StatusOK)
}

func TestRegisterHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		wantMsg string
	}{
		{"missing name", map[string]any{"descriptor": vec(0.5)}, errMissingFields},
		{"blank name", map[string]any{"name": "   ", "descriptor": vec(0.5)}, errMissingFields},
		{"missing descriptor", map[string]any{"name": "Eve"}, errMissingFields},
		{"empty descriptor", map[string]any{"name": "Eve", "descriptor": []float64{}}, errMissingFields},
		{"garbage descriptor", map[string]any{"name": "Eve", "descriptor": "not json"}, errMissingFields},
		{"wrong dimension", map[string]any{"name": "Eve", "descriptor": []float64{0.1, 0.2}}, "embedding dimension mismatch: want 128, got 2"},
		{"slash in name", map[string]any{"name": "a/b", "descriptor": vec(0.5)}, "invalid name: contains forbidden characters"},
		{"not an image", map[string]any{"name": "Eve", "descriptor": vec(0.5), "image": "aGVsbG8="}, "invalid image: is not an image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t, nil)
			h := NewRegisterHandler(m)

			recorder := httptest.NewRecorder()
			h.Register(recorder, jsonRequest(t, http.MethodPost, "/api/v1/register", tt.body))

			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tt.wantMsg)
		})
	}
}

func TestRegisterHandler_InvalidJSON(t *testing.T) {
	m, _ := newTestManager(t, nil)
	h := NewRegisterHandler(m)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	h.Register(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, errInvalidRequestBody)
}

func TestRegisterHandler_PersistenceError(t *testing.T) {
	m, store := newTestManager(t, nil)
	store.AppendError = errors.New("disk full")
	h := NewRegisterHandler(m)

	recorder := httptest.NewRecorder()
	h.Register(recorder, jsonRequest(t, http.MethodPost, "/api/v1/register", map[string]any{"name": "Finn", "descriptor": vec(0.5)}))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to save registration")
}

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    embedding.Embedding
		wantErr bool
	}{
		{"array", `[0.1, 0.2]`, embedding.Embedding{0.1, 0.2}, false},
		{"string", `"[0.1, 0.2]"`, embedding.Embedding{0.1, 0.2}, false},
		{"object", `{"0": 0.1}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDescriptor([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("component %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}
