package registration

import (
	"errors"
	"fmt"

	"github.com/aarthig0611/face-recognition-app/internal/database"
)

var (
	// ErrValidation is matched by errors.Is for every *ValidationError.
	ErrValidation = errors.New("invalid registration")
	// ErrDuplicate means the embedding's fingerprint was registered before.
	ErrDuplicate = database.ErrDuplicate
)

// ValidationError is a user-correctable problem with a registration request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
