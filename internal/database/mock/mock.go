// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/gallery"
)

// MockGalleryStore is an in-memory implementation of database.GalleryStore
type MockGalleryStore struct {
	mu            sync.RWMutex
	registrations []database.Registration
	fingerprints  map[string]struct{}

	// Error injection
	LoadAllError        error
	HasFingerprintError error
	CountError          error
	AppendError         error
	CloseError          error

	// AppendHook runs inside AppendEmbedding before the write, without the lock held
	AppendHook func(reg database.Registration)

	appendCalls int
	closed      bool
}

// NewMockGalleryStore creates a new empty mock store
func NewMockGalleryStore() *MockGalleryStore {
	return &MockGalleryStore{fingerprints: make(map[string]struct{})}
}

// Seed adds identities directly, bypassing duplicate checks and error injection
func (m *MockGalleryStore) Seed(identities ...gallery.LabeledIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range identities {
		for _, e := range id.Embeddings {
			fp := embedding.Fingerprint(e)
			m.registrations = append(m.registrations, database.Registration{Label: id.Label, Embedding: e.Clone(), Fingerprint: fp})
			m.fingerprints[fp] = struct{}{}
		}
	}
}

func (m *MockGalleryStore) Backend() string { return "mock" }

// LoadAll groups registrations by label in order of first appearance
func (m *MockGalleryStore) LoadAll(ctx context.Context) ([]gallery.LabeledIdentity, error) {
	if m.LoadAllError != nil {
		return nil, m.LoadAllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []gallery.LabeledIdentity
	index := map[string]int{}
	for _, r := range m.registrations {
		i, ok := index[r.Label]
		if !ok {
			i = len(out)
			index[r.Label] = i
			out = append(out, gallery.LabeledIdentity{Label: r.Label})
		}
		out[i].Embeddings = append(out[i].Embeddings, r.Embedding.Clone())
	}
	return out, nil
}

// HasFingerprint checks if a fingerprint was stored
func (m *MockGalleryStore) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	if m.HasFingerprintError != nil {
		return false, m.HasFingerprintError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.fingerprints[fingerprint]
	return ok, nil
}

// Count returns the number of distinct labels and of registrations
func (m *MockGalleryStore) Count(ctx context.Context) (int, int, error) {
	if m.CountError != nil {
		return 0, 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	labels := make(map[string]struct{})
	for _, r := range m.registrations {
		labels[r.Label] = struct{}{}
	}
	return len(labels), len(m.registrations), nil
}

// AppendEmbedding stores a registration, returning database.ErrDuplicate for a known fingerprint
func (m *MockGalleryStore) AppendEmbedding(ctx context.Context, reg database.Registration) error {
	if m.AppendHook != nil {
		m.AppendHook(reg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCalls++

	if m.AppendError != nil {
		return m.AppendError
	}
	if _, ok := m.fingerprints[reg.Fingerprint]; ok {
		return database.ErrDuplicate
	}
	reg.Embedding = reg.Embedding.Clone()
	m.registrations = append(m.registrations, reg)
	m.fingerprints[reg.Fingerprint] = struct{}{}
	return nil
}

// Close marks the store closed
func (m *MockGalleryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.CloseError
}

// Registrations returns a copy of everything stored
func (m *MockGalleryStore) Registrations() []database.Registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Registration, len(m.registrations))
	copy(out, m.registrations)
	return out
}

// AppendCalls returns how many times AppendEmbedding reached the store
func (m *MockGalleryStore) AppendCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appendCalls
}

// Closed reports whether Close was called
func (m *MockGalleryStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

var _ database.GalleryStore = (*MockGalleryStore)(nil)
