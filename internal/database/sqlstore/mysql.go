package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/aarthig0611/face-recognition-app/internal/config"
	"github.com/aarthig0611/face-recognition-app/internal/database"
)

const MySQLBackend = "mysql"

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func init() {
	database.RegisterBackend(MySQLBackend, func(ctx context.Context, cfg *config.Config) (database.GalleryStore, error) {
		return OpenMySQL(ctx, cfg.Gallery.DSN)
	})
}

var mysqlDialect = dialect{
	name: MySQLBackend,
	schema: []string{`
		CREATE TABLE IF NOT EXISTS gallery_embeddings (
			seq             BIGINT AUTO_INCREMENT PRIMARY KEY,
			id              CHAR(36) NOT NULL UNIQUE,
			label           VARCHAR(255) NOT NULL,
			fingerprint     TEXT NOT NULL,
			fingerprint_sha CHAR(64) NOT NULL UNIQUE,
			embedding       MEDIUMTEXT NOT NULL,
			photo           MEDIUMBLOB,
			photo_ext       VARCHAR(16) NOT NULL DEFAULT '',
			created_at      DATETIME(3) NOT NULL,
			INDEX idx_gallery_embeddings_label (label)
		) CHARACTER SET utf8mb4`,
	},
	isDuplicate: func(err error) bool {
		var me *mysql.MySQLError
		return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
	},
}

// OpenMySQL opens a MySQL/MariaDB gallery database, e.g.
// "user:pass@tcp(localhost:3306)/faces?parseTime=true".
func OpenMySQL(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("MySQL DSN is required")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s, err := newStore(ctx, db, mysqlDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
