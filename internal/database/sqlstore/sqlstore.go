// Package sqlstore persists the gallery in a single SQL table. SQLite
// (modernc.org/sqlite) and MySQL/MariaDB (go-sql-driver/mysql) share the
// queries; only the schema and duplicate-key detection differ.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/gallery"
	"github.com/aarthig0611/face-recognition-app/internal/logger"
)

var log = logger.Log

// dialect captures what differs between the supported databases.
type dialect struct {
	name        string
	schema      []string
	isDuplicate func(error) bool
}

// Store implements database.GalleryStore on database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
}

func newStore(ctx context.Context, db *sql.DB, d dialect) (*Store, error) {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{db: db, dialect: d}, nil
}

func (s *Store) Backend() string { return s.dialect.name }

// DB returns the underlying sql.DB for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// LoadAll returns identities in order of their first registration.
func (s *Store) LoadAll(ctx context.Context) ([]gallery.LabeledIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label, embedding FROM gallery_embeddings ORDER BY seq`)
	if err != nil {
		return nil, database.Wrap("load gallery", err)
	}
	defer rows.Close()

	var out []gallery.LabeledIdentity
	index := map[string]int{}
	for rows.Next() {
		var label, raw string
		if err := rows.Scan(&label, &raw); err != nil {
			return nil, database.Wrap("scan embedding", err)
		}
		var e embedding.Embedding
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, database.Wrap("decode embedding", err)
		}

		i, ok := index[label]
		if !ok {
			i = len(out)
			index[label] = i
			out = append(out, gallery.LabeledIdentity{Label: label})
		}
		out[i].Embeddings = append(out[i].Embeddings, e)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate embeddings", err)
	}
	return out, nil
}

func (s *Store) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM gallery_embeddings WHERE fingerprint_sha = ?)`,
		database.FingerprintHash(fingerprint),
	).Scan(&exists)
	if err != nil {
		return false, database.Wrap("check fingerprint", err)
	}
	return exists, nil
}

func (s *Store) Count(ctx context.Context) (int, int, error) {
	var identities, embeddings int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT label), COUNT(*) FROM gallery_embeddings`,
	).Scan(&identities, &embeddings)
	if err != nil {
		return 0, 0, database.Wrap("count embeddings", err)
	}
	return identities, embeddings, nil
}

// AppendEmbedding inserts one row. The unique index on fingerprint_sha makes
// the duplicate check atomic even across processes.
func (s *Store) AppendEmbedding(ctx context.Context, reg database.Registration) error {
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

	raw, err := json.Marshal(reg.Embedding)
	if err != nil {
		return database.Wrap("encode embedding", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO gallery_embeddings (id, label, fingerprint, fingerprint_sha, embedding, photo, photo_ext, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		reg.ID, reg.Label, reg.Fingerprint, database.FingerprintHash(reg.Fingerprint),
		string(raw), reg.Photo, reg.PhotoExt, reg.CreatedAt.UTC(),
	)
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return database.ErrDuplicate
		}
		return database.Wrap("insert embedding", err)
	}

	log.Infof("%s: stored embedding %s for %q", s.dialect.name, reg.ID, reg.Label)
	return nil
}

// Photo returns the stored photo of a registration, or nil when there is none.
func (s *Store) Photo(ctx context.Context, id string) ([]byte, string, error) {
	var photo []byte
	var ext string
	err := s.db.QueryRowContext(ctx,
		`SELECT photo, photo_ext FROM gallery_embeddings WHERE id = ?`, id,
	).Scan(&photo, &ext)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", database.Wrap("get photo", err)
	}
	return photo, ext, nil
}
