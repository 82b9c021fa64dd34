package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/database/mock"
	"github.com/aarthig0611/face-recognition-app/internal/detector"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/emotion"
	"github.com/aarthig0611/face-recognition-app/internal/gallery"
	"github.com/aarthig0611/face-recognition-app/internal/registration"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) has(typ EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func (r *recordingSink) find(typ EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == typ {
			return e, true
		}
	}
	return Event{}, false
}

// stranger returns an embedding far from Bob whose fingerprint differs from
// the constant vectors used elsewhere.
func stranger(v float64) embedding.Embedding {
	e := vec(v)
	e[0] += 0.2
	return e
}

func newTestManager(t *testing.T, det detector.Detector) (*Manager, *mock.MockGalleryStore, *fakeClock) {
	t.Helper()
	store := mock.NewMockGalleryStore()
	store.Seed(gallery.LabeledIdentity{Label: "Bob", Embeddings: []embedding.Embedding{vec(0)}})
	clock := newFakeClock()
	m := NewManager(store, gallery.NewMatcher(0.6, embedding.Dim), det, ManagerOptions{Session: manualOptions(clock)})
	_, err := m.LoadGallery(context.Background())
	require.NoError(t, err)
	return m, store, clock
}

func TestManager_Register(t *testing.T) {
	m, store, _ := newTestManager(t, &queueDetector{})
	sink := &recordingSink{}
	m.AddSink(sink)

	alice := stranger(0.7)
	match, err := m.Matcher().FindBestMatch(alice)
	require.NoError(t, err)
	assert.Equal(t, gallery.Unknown, match.Label)

	res, err := m.Register(context.Background(), registration.Request{Name: "Alice", Embedding: alice})
	require.NoError(t, err)
	assert.Equal(t, "Alice", res.Label)
	assert.True(t, res.NewIdentity)

	match, err = m.Matcher().FindBestMatch(alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", match.Label)

	e, ok := sink.find(EventRegistrationSucceeded)
	require.True(t, ok)
	assert.Equal(t, res, e.Registration)
	assert.Empty(t, e.SessionID)

	_, err = m.Register(context.Background(), registration.Request{Name: "Alice", Embedding: alice})
	assert.ErrorIs(t, err, registration.ErrDuplicate)

	id, ok := m.Matcher().Snapshot().Lookup("Alice")
	require.True(t, ok)
	assert.Len(t, id.Embeddings, 1)
	assert.Len(t, store.Registrations(), 2)
}

// gatedStore blocks the first armed LoadAll after it has read the store,
// until release is closed.
type gatedStore struct {
	*mock.MockGalleryStore

	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) LoadAll(ctx context.Context) ([]gallery.LabeledIdentity, error) {
	ids, err := g.MockGalleryStore.LoadAll(ctx)

	g.mu.Lock()
	block := g.armed
	g.armed = false
	g.mu.Unlock()

	if block {
		close(g.entered)
		<-g.release
	}
	return ids, err
}

func spike(i int) embedding.Embedding {
	e := make(embedding.Embedding, embedding.Dim)
	e[i] = 2
	return e
}

func TestManager_ConcurrentRegistrationsKeepNewestGallery(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		MockGalleryStore: mock.NewMockGalleryStore(),
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	store.Seed(gallery.LabeledIdentity{Label: "Bob", Embeddings: []embedding.Embedding{vec(0)}})
	m := NewManager(store, gallery.NewMatcher(0.6, embedding.Dim), &queueDetector{}, ManagerOptions{Session: manualOptions(newFakeClock())})
	_, err := m.LoadGallery(ctx)
	require.NoError(t, err)

	store.mu.Lock()
	store.armed = true
	store.mu.Unlock()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	register := func(name string, e embedding.Embedding) {
		defer wg.Done()
		_, err := m.Register(ctx, registration.Request{Name: name, Embedding: e})
		errs <- err
	}

	// Ann's reload reads [Bob Ann] and stalls
	wg.Add(1)
	go register("Ann", spike(3))
	<-store.entered

	// Cid is stored while Ann's stale read is still pending
	wg.Add(1)
	go register("Cid", spike(7))
	require.Eventually(t, func() bool { return len(store.Registrations()) == 3 }, time.Second, time.Millisecond)

	close(store.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.ElementsMatch(t, []string{"Bob", "Ann", "Cid"}, m.Matcher().Snapshot().Labels())
	match, err := m.Matcher().FindBestMatch(spike(7))
	require.NoError(t, err)
	assert.Equal(t, "Cid", match.Label)
	match, err = m.Matcher().FindBestMatch(spike(3))
	require.NoError(t, err)
	assert.Equal(t, "Ann", match.Label)
}

func TestManager_RegisterMergesLabelVariants(t *testing.T) {
	m, _, _ := newTestManager(t, &queueDetector{})

	res, err := m.Register(context.Background(), registration.Request{Name: "bob", Embedding: stranger(0.01)})
	require.NoError(t, err)
	assert.Equal(t, "Bob", res.Label)
	assert.False(t, res.NewIdentity)
	assert.Equal(t, []string{"Bob"}, m.Matcher().Snapshot().Labels())
}

func TestManager_RegisterClearsActiveDedup(t *testing.T) {
	unknown := stranger(0.7)
	det := &queueDetector{results: [][]detector.Detection{{face(unknown, emotion.Happy)}}}
	m, _, _ := newTestManager(t, det)
	sink := &recordingSink{}
	m.AddSink(sink)

	o, err := m.Start(context.Background(), &scriptedSource{})
	require.NoError(t, err)
	defer m.Shutdown()

	require.NoError(t, o.Tick())
	assert.Equal(t, 1, o.Status().Pending)

	_, err = m.Register(context.Background(), registration.Request{Name: "Alice", Embedding: unknown})
	require.NoError(t, err)
	assert.Equal(t, 0, o.Status().Pending)

	e, ok := sink.find(EventRegistrationSucceeded)
	require.True(t, ok)
	assert.Equal(t, o.ID(), e.SessionID)
}

func TestManager_RegisterValidation(t *testing.T) {
	m, _, _ := newTestManager(t, &queueDetector{})

	_, err := m.Register(context.Background(), registration.Request{Name: "  ", Embedding: vec(1)})
	assert.ErrorIs(t, err, registration.ErrValidation)

	_, err = m.Register(context.Background(), registration.Request{Name: "Carol", Embedding: embedding.Embedding{1, 2}})
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
}

func TestManager_LoadGalleryFailureKeepsGallery(t *testing.T) {
	m, store, _ := newTestManager(t, &queueDetector{})
	store.LoadAllError = errors.New("disk gone")

	_, err := m.LoadGallery(context.Background())
	var perr *database.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []string{"Bob"}, m.Matcher().Snapshot().Labels())
}

func TestManager_SessionLifecycle(t *testing.T) {
	m, _, _ := newTestManager(t, &queueDetector{})
	sink := &recordingSink{}
	m.AddSink(sink)

	o, err := m.Start(context.Background(), &scriptedSource{})
	require.NoError(t, err)

	_, err = m.Start(context.Background(), &scriptedSource{})
	assert.ErrorIs(t, err, ErrSessionActive)

	got, ok := m.Session(o.ID())
	require.True(t, ok)
	assert.Same(t, o, got)

	live, err := m.Report(o.ID())
	require.NoError(t, err)
	assert.Equal(t, ReasonLive, live.Reason)

	report, err := m.Stop(o.ID())
	require.NoError(t, err)
	assert.Equal(t, ReasonStopped, report.Reason)
	assert.Nil(t, m.Active())

	cached, err := m.Report(o.ID())
	require.NoError(t, err)
	assert.Same(t, report, cached)

	again, err := m.Stop(o.ID())
	require.NoError(t, err)
	assert.Same(t, report, again)

	_, err = m.Report("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Stop("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.Eventually(t, func() bool {
		return sink.has(EventSessionStarted) && sink.has(EventSessionReport)
	}, time.Second, time.Millisecond)

	next, err := m.Start(context.Background(), &scriptedSource{})
	require.NoError(t, err)
	assert.NotEqual(t, o.ID(), next.ID())
	m.Shutdown()
	assert.Nil(t, m.Active())
}

func TestManager_Analyze(t *testing.T) {
	unknown := stranger(0.7)
	det := &queueDetector{results: [][]detector.Detection{{
		face(vec(0), emotion.Happy),
		face(unknown, emotion.Sad),
		face(unknown, emotion.Angry),
	}}}
	m, _, _ := newTestManager(t, det)

	analysis, err := m.Analyze(context.Background(), []byte("photo"))
	require.NoError(t, err)
	require.Len(t, analysis.Faces, 3)
	assert.Equal(t, "Bob", analysis.Faces[0].Label)
	assert.Equal(t, emotion.Happy, analysis.Faces[0].Emotion)
	assert.Equal(t, gallery.Unknown, analysis.Faces[1].Label)
	require.Len(t, analysis.Unresolved, 1)
	assert.Equal(t, embedding.Fingerprint(unknown), analysis.Unresolved[0].Fingerprint)
}

func TestManager_AnalyzeDetectorError(t *testing.T) {
	m, _, _ := newTestManager(t, &queueDetector{errs: []error{detector.ErrCircuitOpen}})

	_, err := m.Analyze(context.Background(), []byte("photo"))
	assert.ErrorIs(t, err, detector.ErrCircuitOpen)
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	ch := b.AddListener()
	assert.Equal(t, 1, b.Listeners())

	b.Publish(Event{Type: EventSessionStarted})
	e := <-ch
	assert.Equal(t, EventSessionStarted, e.Type)

	b.RemoveListener(ch)
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Listeners())

	b.Publish(Event{Type: EventSessionReport}) // no listeners, no panic
}
