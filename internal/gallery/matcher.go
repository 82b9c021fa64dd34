package gallery

import (
	"sync/atomic"

	"github.com/aarthig0611/face-recognition-app/internal/constants"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/logger"
)

var log = logger.Log

// Match is the outcome of FindBestMatch.
type Match struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"` // distance to the nearest reference; 0 for an empty gallery
}

// Known reports whether the match resolved to an identity.
func (m Match) Known() bool {
	return m.Label != Unknown
}

// Matcher resolves descriptors against the current gallery. Rebuild swaps the
// gallery atomically, so concurrent FindBestMatch calls see either the old or
// the new snapshot in full.
type Matcher struct {
	current   atomic.Pointer[Gallery]
	threshold float64
	dim       int
}

// NewMatcher returns a matcher over an empty gallery. Non-positive threshold or
// dim fall back to the defaults.
func NewMatcher(threshold float64, dim int) *Matcher {
	if threshold <= 0 {
		threshold = constants.DefaultDistanceThreshold
	}
	if dim <= 0 {
		dim = embedding.Dim
	}
	m := &Matcher{threshold: threshold, dim: dim}
	m.current.Store(Empty())
	return m
}

func (m *Matcher) Threshold() float64 { return m.threshold }

func (m *Matcher) Dim() int { return m.dim }

// Snapshot returns the gallery currently in use.
func (m *Matcher) Snapshot() *Gallery {
	return m.current.Load()
}

// FindBestMatch returns the label owning the globally nearest reference
// embedding when its distance is <= threshold, otherwise Unknown. On equal
// distances the first pair in gallery order wins.
func (m *Matcher) FindBestMatch(e embedding.Embedding) (Match, error) {
	if len(e) != m.dim {
		return Match{}, &embedding.DimensionMismatchError{Want: m.dim, Got: len(e)}
	}

	g := m.current.Load()
	best := Match{Label: Unknown}
	found := false

	for _, id := range g.identities {
		for _, ref := range id.Embeddings {
			d, err := embedding.Distance(ref, e)
			if err != nil {
				return Match{}, err
			}
			if !found || d < best.Distance {
				best = Match{Label: id.Label, Distance: d}
				found = true
			}
		}
	}

	if !found {
		return Match{Label: Unknown}, nil
	}
	if best.Distance > m.threshold {
		best.Label = Unknown
	}
	return best, nil
}

// Rebuild replaces the gallery with identities. On error the previous gallery
// stays in place.
func (m *Matcher) Rebuild(identities []LabeledIdentity) error {
	g, err := New(identities, m.dim)
	if err != nil {
		log.Warnf("gallery: rebuild rejected: %v", err)
		return err
	}
	m.current.Store(g)
	log.Infof("gallery: rebuilt with %d identities, %d embeddings", g.Len(), g.EmbeddingCount())
	return nil
}
