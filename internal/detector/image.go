package detector

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/aarthig0611/face-recognition-app/internal/constants"
)

// ErrEmptyCrop is returned when a box does not overlap the image.
var ErrEmptyCrop = errors.New("face box outside the image")

// ResizeImage resizes an image to fit within maxSize while keeping aspect ratio.
// Returns JPEG-encoded bytes and the applied scale; images that already fit
// are returned unchanged with scale 1.
func ResizeImage(data []byte, maxSize int) ([]byte, float64, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	// Check if resizing is needed.
	if maxSize <= 0 || (cfg.Width <= maxSize && cfg.Height <= maxSize) {
		return data, 1, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	scale := float64(maxSize) / float64(max(cfg.Width, cfg.Height))
	newWidth := max(1, int(float64(cfg.Width)*scale))
	newHeight := max(1, int(float64(cfg.Height)*scale))

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, 0, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), scale, nil
}

// Crop cuts box out of an encoded frame, clamped to the frame, scaled down so
// its longest side is at most constants.MaxCropSide, and returns PNG bytes.
func Crop(frame []byte, box Box) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	rect := image.Rect(
		b.Min.X+int(math.Floor(box.X)),
		b.Min.Y+int(math.Floor(box.Y)),
		b.Min.X+int(math.Ceil(box.X+box.Width)),
		b.Min.Y+int(math.Ceil(box.Y+box.Height)),
	).Intersect(b)
	if rect.Empty() {
		return nil, ErrEmptyCrop
	}

	w, h := rect.Dx(), rect.Dy()
	if longest := max(w, h); longest > constants.MaxCropSide {
		scale := float64(constants.MaxCropSide) / float64(longest)
		w = max(1, int(float64(w)*scale))
		h = max(1, int(float64(h)*scale))
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, rect, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL encodes PNG bytes as a data URL, the format the registration
// endpoint accepts back.
func DataURL(pngData []byte) string {
	if len(pngData) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
}
