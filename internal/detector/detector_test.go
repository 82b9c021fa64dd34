package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func detectServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Detect(t *testing.T) {
	frame := encodePNG(t, createTestImage(64, 48, color.White))

	srv := detectServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		assert.Equal(t, frame, data)

		json.NewEncoder(w).Encode(map[string]any{
			"faces": []map[string]any{{
				"box":         map[string]float64{"x": 1, "y": 2, "width": 30, "height": 40},
				"embedding":   []float64{0.1, 0.2},
				"age":         31.5,
				"gender":      "female",
				"expressions": map[string]float64{"happy": 0.9, "neutral": 0.1},
			}},
		})
	})

	c := NewClient(srv.URL+"/", time.Second, BreakerConfig{})
	got, err := c.Detect(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, Box{X: 1, Y: 2, Width: 30, Height: 40}, got[0].Box)
	assert.Equal(t, "female", got[0].Gender)
	assert.InDelta(t, 31.5, got[0].Age, 1e-9)
	assert.Equal(t, 0.9, got[0].Expressions["happy"])
	assert.Len(t, got[0].Embedding, 2)
}

func TestClient_DetectNoFaces(t *testing.T) {
	srv := detectServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"faces": null}`))
	})

	c := NewClient(srv.URL, time.Second, BreakerConfig{})
	got, err := c.Detect(context.Background(), encodePNG(t, createTestImage(8, 8, color.Black)))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestClient_DetectScalesBoxesOfLargeImages(t *testing.T) {
	var uploaded []byte
	srv := detectServer(t, func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		uploaded, _ = io.ReadAll(file)
		w.Write([]byte(`{"faces":[{"box":{"x":10,"y":10,"width":20,"height":20},"embedding":[1]}]}`))
	})

	c := NewClient(srv.URL, time.Second, BreakerConfig{})
	c.maxImage = 100

	got, err := c.Detect(context.Background(), encodeJPEG(t, createTestImage(400, 200, color.White)))
	require.NoError(t, err)

	w, h := decodeSize(t, uploaded)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)
	assert.Equal(t, Box{X: 40, Y: 40, Width: 80, Height: 80}, got[0].Box)
}

func TestClient_ServerError(t *testing.T) {
	srv := detectServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})

	c := NewClient(srv.URL, time.Second, BreakerConfig{})
	_, err := c.Detect(context.Background(), encodePNG(t, createTestImage(8, 8, color.Black)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_InvalidImage(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second, BreakerConfig{})
	_, err := c.Detect(context.Background(), []byte("not an image"))
	assert.Error(t, err)
}

func TestClient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := detectServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c := NewClient(srv.URL, time.Second, BreakerConfig{MaxFailures: 2, Timeout: time.Minute})
	frame := encodePNG(t, createTestImage(8, 8, color.Black))

	for range 2 {
		_, err := c.Detect(context.Background(), frame)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCircuitOpen))
	}
	assert.Equal(t, "open", c.BreakerState())

	_, err := c.Detect(context.Background(), frame)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Health(t *testing.T) {
	srv := detectServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	assert.NoError(t, NewClient(srv.URL, time.Second, BreakerConfig{}).Health(context.Background()))
}

func TestCrop(t *testing.T) {
	img := createTestImage(100, 80, color.White)
	for x := 20; x < 40; x++ {
		for y := 10; y < 50; y++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	frame := encodePNG(t, img)

	out, err := Crop(frame, Box{X: 20, Y: 10, Width: 20, Height: 40})
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 20, decoded.Bounds().Dx())
	assert.Equal(t, 40, decoded.Bounds().Dy())
	r, g, b, _ := decoded.At(10, 20).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, g)
	assert.Zero(t, b)
}

func TestCrop_ClampsAndScales(t *testing.T) {
	frame := encodeJPEG(t, createTestImage(640, 480, color.Gray{Y: 128}))

	out, err := Crop(frame, Box{X: -100, Y: 100, Width: 1000, Height: 300})
	require.NoError(t, err)

	w, h := decodeSize(t, out)
	assert.Equal(t, 160, w)
	assert.Equal(t, 75, h) // 640x300 clamped, scaled by 0.25
}

func TestCrop_OutsideImage(t *testing.T) {
	frame := encodePNG(t, createTestImage(10, 10, color.Black))

	_, err := Crop(frame, Box{X: 50, Y: 50, Width: 5, Height: 5})
	assert.ErrorIs(t, err, ErrEmptyCrop)

	_, err = Crop([]byte("garbage"), Box{Width: 1, Height: 1})
	assert.Error(t, err)
}

func TestResizeImage_SmallImageUnchanged(t *testing.T) {
	frame := encodePNG(t, createTestImage(10, 10, color.Black))

	out, scale, err := ResizeImage(frame, 100)
	require.NoError(t, err)
	assert.Equal(t, 1.0, scale)
	assert.Equal(t, frame, out)
}

func TestDataURL(t *testing.T) {
	assert.Empty(t, DataURL(nil))
	assert.True(t, strings.HasPrefix(DataURL([]byte{1, 2, 3}), "data:image/png;base64,"))
}
