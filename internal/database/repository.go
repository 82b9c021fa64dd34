package database

import (
	"context"

	"github.com/aarthig0611/face-recognition-app/internal/gallery"
)

// GalleryReader provides read-only access to persisted identities
type GalleryReader interface {
	// LoadAll returns every identity with its reference embeddings in a stable order
	LoadAll(ctx context.Context) ([]gallery.LabeledIdentity, error)
	// HasFingerprint reports whether any registration ever stored this fingerprint
	HasFingerprint(ctx context.Context, fingerprint string) (bool, error)
	// Count returns the number of identities and of stored embeddings
	Count(ctx context.Context) (identities, embeddings int, err error)
}

// GalleryWriter provides write access to persisted identities
type GalleryWriter interface {
	GalleryReader

	// AppendEmbedding stores one reference embedding under reg.Label, creating the
	// identity when it does not exist yet. Returns ErrDuplicate when the
	// fingerprint is already stored.
	AppendEmbedding(ctx context.Context, reg Registration) error
}

// GalleryStore is an opened backend.
type GalleryStore interface {
	GalleryWriter

	// Backend returns the registered backend name
	Backend() string
	Close() error
}
