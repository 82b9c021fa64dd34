// Package capture provides the frame sources a session samples from.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoFrame means no new frame is available yet; the tick is skipped.
var ErrNoFrame = errors.New("no frame available")

// ErrDevice is matched by errors.Is for every *DeviceError.
var ErrDevice = errors.New("capture device unavailable")

// DeviceError reports an unrecoverable capture failure. It ends the session.
type DeviceError struct {
	Source string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture device %s: %v", e.Source, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func (e *DeviceError) Is(target error) bool { return target == ErrDevice }

// Frame is one encoded image (JPEG, PNG or WebP).
type Frame struct {
	Data       []byte
	CapturedAt time.Time
}

// Source delivers frames to a session. Next must honour ctx cancellation.
type Source interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (Frame, error)
	Close() error
	Name() string
}
