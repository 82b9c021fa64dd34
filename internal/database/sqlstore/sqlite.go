package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aarthig0611/face-recognition-app/internal/config"
	"github.com/aarthig0611/face-recognition-app/internal/database"
)

const SQLiteBackend = "sqlite"

func init() {
	database.RegisterBackend(SQLiteBackend, func(ctx context.Context, cfg *config.Config) (database.GalleryStore, error) {
		dsn := cfg.Gallery.DSN
		if dsn == "" {
			dsn = "gallery.db"
		}
		return OpenSQLite(ctx, dsn)
	})
}

var sqliteDialect = dialect{
	name: SQLiteBackend,
	schema: []string{`
		CREATE TABLE IF NOT EXISTS gallery_embeddings (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			label           TEXT NOT NULL,
			fingerprint     TEXT NOT NULL,
			fingerprint_sha TEXT NOT NULL UNIQUE,
			embedding       TEXT NOT NULL,
			photo           BLOB,
			photo_ext       TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gallery_embeddings_label ON gallery_embeddings(label)`,
	},
	isDuplicate: func(err error) bool {
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

// OpenSQLite opens (and creates) a SQLite gallery database.
func OpenSQLite(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("SQLite DSN is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection serialises writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s, err := newStore(ctx, db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
