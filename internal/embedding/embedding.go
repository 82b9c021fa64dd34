// Package embedding holds the face descriptor type shared by every component
// together with the distance and fingerprint functions computed over it.
package embedding

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/aarthig0611/face-recognition-app/internal/constants"
)

// Dim is the descriptor length produced by the detection model.
const Dim = constants.EmbeddingDim

// Embedding is a face descriptor. Values are treated as immutable once produced;
// anything that retains one keeps its own Clone.
type Embedding []float64

// ErrDimensionMismatch is matched by errors.Is for every *DimensionMismatchError.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ErrInvalidValue is returned by Validate for NaN or infinite components.
var ErrInvalidValue = errors.New("embedding contains NaN or Inf")

// DimensionMismatchError reports two descriptors (or a descriptor and the
// configured dimension) of different lengths.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Want: len(a), Got: len(b)}
	}
	if len(a) == 0 {
		return 0, nil
	}
	return floats.Distance(a, b, 2), nil
}

// Validate checks that e has exactly dim finite components.
func Validate(e Embedding, dim int) error {
	if len(e) != dim {
		return &DimensionMismatchError{Want: dim, Got: len(e)}
	}
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("component %d: %w", i, ErrInvalidValue)
		}
	}
	return nil
}

// Clone returns a copy of e that shares no memory with it.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Fingerprint returns the quantized, mean-centered key of e: every component is
// rounded to 3 decimals, the mean of the rounded values is subtracted and the
// result is formatted with 3 decimals and joined by commas.
func Fingerprint(e Embedding) string {
	if len(e) == 0 {
		return ""
	}

	scale := math.Pow10(constants.FingerprintDecimals)
	quantized := make([]float64, len(e))
	for i, v := range e {
		quantized[i] = math.Round(v*scale) / scale
	}
	mean := floats.Sum(quantized) / float64(len(quantized))

	parts := make([]string, len(quantized))
	for i, v := range quantized {
		c := math.Round((v-mean)*scale) / scale
		if c == 0 {
			c = 0 // no "-0.000"
		}
		parts[i] = strconv.FormatFloat(c, 'f', constants.FingerprintDecimals, 64)
	}
	return strings.Join(parts, ",")
}
