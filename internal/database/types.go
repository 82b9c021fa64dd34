package database

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/aarthig0611/face-recognition-app/internal/embedding"
)

// Registration is one persisted reference embedding.
type Registration struct {
	ID          string
	Label       string
	Embedding   embedding.Embedding
	Fingerprint string
	Photo       []byte // optional
	PhotoExt    string // file extension without the dot, e.g. "png"
	CreatedAt   time.Time
}

// FingerprintHash returns the hex SHA-256 of a fingerprint. SQL backends index
// the hash because the fingerprint itself is too long for a unique key.
func FingerprintHash(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])
}
