// Package gallery holds the known identities and resolves a face descriptor to
// the label of its nearest reference embedding.
package gallery

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aarthig0611/face-recognition-app/internal/constants"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
)

// Unknown is the label returned for descriptors that match no identity.
const Unknown = constants.UnknownLabel

var (
	ErrDuplicateLabel = errors.New("duplicate identity label")
	ErrEmptyLabel     = errors.New("identity label is empty")
)

// LabeledIdentity is a named person with one or more reference embeddings.
type LabeledIdentity struct {
	Label      string                `json:"label"`
	Embeddings []embedding.Embedding `json:"descriptors"`
}

// Clone returns a deep copy of the identity.
func (li LabeledIdentity) Clone() LabeledIdentity {
	out := LabeledIdentity{Label: li.Label, Embeddings: make([]embedding.Embedding, len(li.Embeddings))}
	for i, e := range li.Embeddings {
		out.Embeddings[i] = e.Clone()
	}
	return out
}

// Gallery is an immutable, ordered snapshot of identities. Build it with New.
type Gallery struct {
	identities []LabeledIdentity
	embeddings int
}

// New copies identities into a fresh Gallery. Labels must be unique and every
// embedding must have dim finite components. Order is preserved.
func New(identities []LabeledIdentity, dim int) (*Gallery, error) {
	g := &Gallery{identities: make([]LabeledIdentity, 0, len(identities))}
	seen := make(map[string]struct{}, len(identities))

	for _, id := range identities {
		if id.Label == "" {
			return nil, ErrEmptyLabel
		}
		if _, ok := seen[id.Label]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLabel, id.Label)
		}
		seen[id.Label] = struct{}{}

		for i, e := range id.Embeddings {
			if err := embedding.Validate(e, dim); err != nil {
				return nil, fmt.Errorf("identity %q embedding %d: %w", id.Label, i, err)
			}
		}
		g.identities = append(g.identities, id.Clone())
		g.embeddings += len(id.Embeddings)
	}
	return g, nil
}

// Empty returns a gallery with no identities.
func Empty() *Gallery {
	return &Gallery{}
}

// Len returns the number of identities.
func (g *Gallery) Len() int {
	return len(g.identities)
}

// EmbeddingCount returns the total number of reference embeddings.
func (g *Gallery) EmbeddingCount() int {
	return g.embeddings
}

// Identities returns a deep copy of the identities in gallery order.
func (g *Gallery) Identities() []LabeledIdentity {
	out := make([]LabeledIdentity, len(g.identities))
	for i, id := range g.identities {
		out[i] = id.Clone()
	}
	return out
}

// Labels returns the identity labels sorted alphabetically.
func (g *Gallery) Labels() []string {
	labels := make([]string, len(g.identities))
	for i, id := range g.identities {
		labels[i] = id.Label
	}
	sort.Strings(labels)
	return labels
}

// Lookup returns the identity with exactly the given label.
func (g *Gallery) Lookup(label string) (LabeledIdentity, bool) {
	for _, id := range g.identities {
		if id.Label == label {
			return id.Clone(), true
		}
	}
	return LabeledIdentity{}, false
}
