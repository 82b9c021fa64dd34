package registration

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/database/mock"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/gallery"
)

// 1x1 transparent PNG
var pngPixel, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

func vec(v float64) embedding.Embedding {
	e := make(embedding.Embedding, embedding.Dim)
	e[0] = v
	e[64] = -v
	return e
}

func TestRegister_Success(t *testing.T) {
	store := mock.NewMockGalleryStore()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewPipeline(store, embedding.Dim, WithClock(func() time.Time { return at }))

	res, err := p.Register(context.Background(), Request{Name: "  Alice ", Embedding: vec(0.1), Photo: pngPixel})
	require.NoError(t, err)

	assert.Equal(t, "Alice", res.Label)
	assert.True(t, res.NewIdentity)
	assert.True(t, res.PhotoStored)
	assert.Equal(t, at, res.CreatedAt)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, embedding.Fingerprint(vec(0.1)), res.Fingerprint)

	regs := store.Registrations()
	require.Len(t, regs, 1)
	assert.Equal(t, "png", regs[0].PhotoExt)
	assert.Equal(t, "Alice", regs[0].Label)
}

func TestRegister_SamePairTwiceIsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := mock.NewMockGalleryStore()
	p := NewPipeline(store, embedding.Dim)

	_, err := p.Register(ctx, Request{Name: "Alice", Embedding: vec(0.1)})
	require.NoError(t, err)

	_, err = p.Register(ctx, Request{Name: "Alice", Embedding: vec(0.1)})
	assert.ErrorIs(t, err, ErrDuplicate)

	ids, err := store.LoadAll(ctx)
	require.NoError(t, err)

	m := gallery.NewMatcher(0.6, embedding.Dim)
	require.NoError(t, m.Rebuild(ids))
	alice, ok := m.Snapshot().Lookup("Alice")
	require.True(t, ok)
	assert.Len(t, alice.Embeddings, 1)
}

func TestRegister_DuplicateAcrossNames(t *testing.T) {
	ctx := context.Background()
	p := NewPipeline(mock.NewMockGalleryStore(), embedding.Dim)

	_, err := p.Register(ctx, Request{Name: "Alice", Embedding: vec(0.1)})
	require.NoError(t, err)
	_, err = p.Register(ctx, Request{Name: "Bob", Embedding: vec(0.1)})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestRegister_Validation(t *testing.T) {
	p := NewPipeline(mock.NewMockGalleryStore(), embedding.Dim)

	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"empty name", Request{Name: "", Embedding: vec(1)}, "name"},
		{"blank name", Request{Name: "   ", Embedding: vec(1)}, "name"},
		{"nil embedding", Request{Name: "Alice"}, "embedding"},
		{"empty embedding", Request{Name: "Alice", Embedding: embedding.Embedding{}}, "embedding"},
		{"slash in name", Request{Name: "../etc", Embedding: vec(1)}, "name"},
		{"not an image", Request{Name: "Alice", Embedding: vec(1), Photo: []byte("hello world, not an image")}, "image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Register(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrValidation)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestRegister_DimensionMismatch(t *testing.T) {
	p := NewPipeline(mock.NewMockGalleryStore(), embedding.Dim)

	_, err := p.Register(context.Background(), Request{Name: "Alice", Embedding: embedding.Embedding{1, 2, 3}})

	var dimErr *embedding.DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 3, dimErr.Got)
}

func TestRegister_PersistenceError(t *testing.T) {
	store := mock.NewMockGalleryStore()
	store.AppendError = errors.New("disk full")
	p := NewPipeline(store, embedding.Dim)

	_, err := p.Register(context.Background(), Request{Name: "Alice", Embedding: vec(1)})

	var pe *database.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, store.Registrations())

	store.AppendError = nil
	store.HasFingerprintError = errors.New("connection reset")
	_, err = p.Register(context.Background(), Request{Name: "Alice", Embedding: vec(1)})
	require.True(t, errors.As(err, &pe))
}

func TestRegister_LabelResolver(t *testing.T) {
	g, err := gallery.New([]gallery.LabeledIdentity{{Label: "Jan Novák", Embeddings: []embedding.Embedding{vec(5)}}}, embedding.Dim)
	require.NoError(t, err)
	store := mock.NewMockGalleryStore()
	p := NewPipeline(store, embedding.Dim, WithLabelResolver(g.ResolveLabel))

	res, err := p.Register(context.Background(), Request{Name: "jan-novak", Embedding: vec(0.2)})
	require.NoError(t, err)

	assert.Equal(t, "Jan Novák", res.Label)
	assert.False(t, res.NewIdentity)
}

func TestRegister_ConcurrentSameEmbeddingOnlyOneSucceeds(t *testing.T) {
	store := mock.NewMockGalleryStore()
	var inFlight, maxInFlight atomic.Int32
	store.AppendHook = func(database.Registration) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
	}
	p := NewPipeline(store, embedding.Dim)

	var wg sync.WaitGroup
	var ok, dup atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Register(context.Background(), Request{Name: "Alice", Embedding: vec(0.7)})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrDuplicate):
				dup.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(9), dup.Load())
	assert.Equal(t, 1, store.AppendCalls())
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Zero(t, p.locks.size())
}

func TestRegister_DifferentEmbeddingsDoNotSerialise(t *testing.T) {
	store := mock.NewMockGalleryStore()
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	store.AppendHook = func(database.Registration) {
		started <- struct{}{}
		<-release
	}
	p := NewPipeline(store, embedding.Dim)

	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Register(context.Background(), Request{Name: "Alice", Embedding: vec(float64(i + 1))})
		}()
	}

	for range 2 {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("registrations of different embeddings blocked each other")
		}
	}
	close(release)
	wg.Wait()
	assert.Len(t, store.Registrations(), 2)
}

func TestDecodePhoto(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString(pngPixel)

	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"data url", "data:image/png;base64," + raw, pngPixel, false},
		{"bare base64", raw, pngPixel, false},
		{"data url without base64", "data:image/png," + raw, nil, true},
		{"garbage", "%%%", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePhoto(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
