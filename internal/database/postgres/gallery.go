package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/gallery"
)

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// GalleryStore implements database.GalleryStore on PostgreSQL.
// Embeddings are stored as pgvector vectors (single precision).
type GalleryStore struct {
	pool *Pool
}

// NewGalleryStore creates a new PostgreSQL gallery store
func NewGalleryStore(pool *Pool) *GalleryStore {
	return &GalleryStore{pool: pool}
}

func (s *GalleryStore) Backend() string { return BackendName }

func (s *GalleryStore) Close() error { return s.pool.Close() }

// LoadAll returns identities in order of their first registration.
func (s *GalleryStore) LoadAll(ctx context.Context) ([]gallery.LabeledIdentity, error) {
	rows, err := s.pool.db.QueryContext(ctx, `SELECT label, embedding FROM gallery_embeddings ORDER BY seq`)
	if err != nil {
		return nil, database.Wrap("load gallery", err)
	}
	defer rows.Close()

	var out []gallery.LabeledIdentity
	index := map[string]int{}
	for rows.Next() {
		var label string
		var vec pgvector.Vector
		if err := rows.Scan(&label, &vec); err != nil {
			return nil, database.Wrap("scan embedding", err)
		}

		i, ok := index[label]
		if !ok {
			i = len(out)
			index[label] = i
			out = append(out, gallery.LabeledIdentity{Label: label})
		}
		out[i].Embeddings = append(out[i].Embeddings, fromVector(vec))
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate embeddings", err)
	}
	return out, nil
}

func (s *GalleryStore) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.pool.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM gallery_embeddings WHERE fingerprint_sha = $1)`,
		database.FingerprintHash(fingerprint),
	).Scan(&exists)
	if err != nil {
		return false, database.Wrap("check fingerprint", err)
	}
	return exists, nil
}

func (s *GalleryStore) Count(ctx context.Context) (int, int, error) {
	var identities, embeddings int
	err := s.pool.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT label), COUNT(*) FROM gallery_embeddings`,
	).Scan(&identities, &embeddings)
	if err != nil {
		return 0, 0, database.Wrap("count embeddings", err)
	}
	return identities, embeddings, nil
}

func (s *GalleryStore) AppendEmbedding(ctx context.Context, reg database.Registration) error {
	if reg.Label == "" || len(reg.Embedding) == 0 {
		return errors.New("label and embedding are required")
	}
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.Fingerprint == "" {
		reg.Fingerprint = embedding.Fingerprint(reg.Embedding)
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now()
	}

	_, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO gallery_embeddings (id, label, fingerprint, fingerprint_sha, embedding, photo, photo_ext, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reg.ID, reg.Label, reg.Fingerprint, database.FingerprintHash(reg.Fingerprint),
		toVector(reg.Embedding), reg.Photo, reg.PhotoExt, reg.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return database.ErrDuplicate
		}
		return database.Wrap("insert embedding", err)
	}

	log.Infof("postgres: stored embedding %s for %q", reg.ID, reg.Label)
	return nil
}

// Photo returns the stored photo of a registration, or nil when there is none.
func (s *GalleryStore) Photo(ctx context.Context, id string) ([]byte, string, error) {
	var photo []byte
	var ext string
	err := s.pool.db.QueryRowContext(ctx,
		`SELECT photo, photo_ext FROM gallery_embeddings WHERE id = $1`, id,
	).Scan(&photo, &ext)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get photo: %w", err)
	}
	return photo, ext, nil
}

func toVector(e embedding.Embedding) pgvector.Vector {
	f := make([]float32, len(e))
	for i, v := range e {
		f[i] = float32(v)
	}
	return pgvector.NewVector(f)
}

func fromVector(vec pgvector.Vector) embedding.Embedding {
	s := vec.Slice()
	e := make(embedding.Embedding, len(s))
	for i, v := range s {
		e[i] = float64(v)
	}
	return e
}
