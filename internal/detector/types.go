// Package detector talks to the external face detection model and prepares
// face crops for the UI.
package detector

import (
	"context"

	"github.com/aarthig0611/face-recognition-app/internal/embedding"
)

// Box is a face bounding box in pixels of the submitted image.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one face found by the model.
type Detection struct {
	Box         Box                 `json:"box"`
	Embedding   embedding.Embedding `json:"embedding"`
	Age         float64             `json:"age"`
	Gender      string              `json:"gender"`
	Expressions map[string]float64  `json:"expressions"`
}

// Detector finds faces in an encoded image. An image without faces yields an
// empty slice and no error.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]Detection, error)
}

// DetectFunc adapts a function to the Detector interface.
type DetectFunc func(ctx context.Context, image []byte) ([]Detection, error)

func (f DetectFunc) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	return f(ctx, image)
}

// detectResponse represents the response from the detection server
type detectResponse struct {
	Faces []Detection `json:"faces"`
}
