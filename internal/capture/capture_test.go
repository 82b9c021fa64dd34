package capture

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushSource(t *testing.T) {
	ctx := context.Background()
	p := NewPushSource()

	_, err := p.Next(ctx)
	assert.ErrorIs(t, err, ErrDevice, "next before open")

	require.NoError(t, p.Open(ctx))

	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, ErrNoFrame)

	require.NoError(t, p.Push([]byte("one")))
	require.NoError(t, p.Push([]byte("two")))

	f, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", string(f.Data))
	assert.False(t, f.CapturedAt.IsZero())

	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, ErrNoFrame, "a frame is delivered once")

	assert.Error(t, p.Push(nil))

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Push([]byte("late")), ErrDevice)
	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, ErrDevice)
	assert.ErrorIs(t, p.Open(ctx), ErrDevice)
}

func TestPushSource_CopiesInput(t *testing.T) {
	p := NewPushSource()
	require.NoError(t, p.Open(context.Background()))

	buf := []byte("abc")
	require.NoError(t, p.Push(buf))
	buf[0] = 'z'

	f, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(f.Data))
}

func TestDirectorySource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.png", "notes.txt", "c.WEBP"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755))

	d := NewDirectorySource(dir)
	require.NoError(t, d.Open(ctx))
	assert.Equal(t, 3, d.Remaining())

	var got []string
	for range 3 {
		f, err := d.Next(ctx)
		require.NoError(t, err)
		got = append(got, string(f.Data))
	}
	assert.Equal(t, []string{"a.png", "b.jpg", "c.WEBP"}, got)

	_, err := d.Next(ctx)
	var de *DeviceError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "directory", de.Source)
}

func TestDirectorySource_OpenErrors(t *testing.T) {
	ctx := context.Background()

	err := NewDirectorySource(filepath.Join(t.TempDir(), "missing")).Open(ctx)
	assert.ErrorIs(t, err, ErrDevice)

	err = NewDirectorySource(t.TempDir()).Open(ctx)
	assert.ErrorIs(t, err, ErrDevice)
}

func TestSnapshotSource(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	}))
	defer srv.Close()

	ctx := context.Background()
	s := NewSnapshotSource(srv.URL, 0)
	require.NoError(t, s.Open(ctx))

	f, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, f.Data)

	fail.Store(true)
	for i := 1; i < DefaultMaxSnapshotFailures; i++ {
		_, err := s.Next(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDevice, "failure %d should only skip the frame", i)
	}
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, ErrDevice)

	fail.Store(false)
	_, err = s.Next(ctx)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestSnapshotSource_OpenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.ErrorIs(t, NewSnapshotSource(srv.URL, 0).Open(context.Background()), ErrDevice)
	assert.ErrorIs(t, NewSnapshotSource("", 0).Open(context.Background()), ErrDevice)
}
