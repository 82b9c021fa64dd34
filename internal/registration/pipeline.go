// Package registration turns an unresolved face descriptor and a name into a
// persisted reference embedding, exactly once per fingerprint.
package registration

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/logger"
)

var log = logger.Log

// Request is one registration attempt.
type Request struct {
	Name      string              `validate:"required,max=255,label"`
	Embedding embedding.Embedding `validate:"required,min=1"`
	Photo     []byte              // optional, any image format
}

// Result describes a stored registration.
type Result struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Fingerprint string    `json:"fingerprint"`
	NewIdentity bool      `json:"newIdentity"`
	PhotoStored bool      `json:"photoStored"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LabelResolver maps a requested name to the label already used for the same
// person, reporting whether that identity exists.
type LabelResolver func(name string) (label string, exists bool)

type Option func(*Pipeline)

// WithLabelResolver makes spelling variants of a known name append to it.
func WithLabelResolver(r LabelResolver) Option {
	return func(p *Pipeline) { p.resolve = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline validates and persists registrations. It never touches the gallery
// matcher; the caller reloads it after a successful Register.
type Pipeline struct {
	store   database.GalleryWriter
	dim     int
	resolve LabelResolver
	now     func() time.Time
	locks   keyedMutex
}

func NewPipeline(store database.GalleryWriter, dim int, opts ...Option) *Pipeline {
	if dim <= 0 {
		dim = embedding.Dim
	}
	p := &Pipeline{store: store, dim: dim, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register validates req, rejects fingerprints that were ever registered and
// appends the embedding (and photo) under the resolved label. The duplicate
// check and the write run under a per-fingerprint lock.
//
// Errors: *ValidationError, *embedding.DimensionMismatchError, ErrDuplicate,
// *database.PersistenceError.
func (p *Pipeline) Register(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	if err := embedding.Validate(req.Embedding, p.dim); err != nil {
		return nil, err
	}

	var ext string
	if len(req.Photo) > 0 {
		var err error
		if ext, err = sniffPhoto(req.Photo); err != nil {
			return nil, err
		}
	}

	label, exists := req.Name, false
	if p.resolve != nil {
		label, exists = p.resolve(req.Name)
	}

	fp := embedding.Fingerprint(req.Embedding)
	unlock := p.locks.Lock(fp)
	defer unlock()

	dup, err := p.store.HasFingerprint(ctx, fp)
	if err != nil {
		return nil, database.Wrap("check fingerprint", err)
	}
	if dup {
		log.Infof("registration: rejected duplicate embedding for %q", label)
		return nil, ErrDuplicate
	}

	reg := database.Registration{
		ID:          uuid.NewString(),
		Label:       label,
		Embedding:   req.Embedding.Clone(),
		Fingerprint: fp,
		Photo:       req.Photo,
		PhotoExt:    ext,
		CreatedAt:   p.now(),
	}
	if err := p.store.AppendEmbedding(ctx, reg); err != nil {
		return nil, database.Wrap("append embedding", err)
	}

	log.Infof("registration: stored %s for %q (new identity: %v)", reg.ID, label, !exists)
	return &Result{
		ID:          reg.ID,
		Label:       label,
		Fingerprint: fp,
		NewIdentity: !exists,
		PhotoStored: len(req.Photo) > 0,
		CreatedAt:   reg.CreatedAt,
	}, nil
}
