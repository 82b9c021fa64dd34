package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

// PushSource holds the latest frame pushed from outside (for example a
// browser webcam posting snapshots). Frames that arrive between two ticks
// replace each other; each frame is returned by Next at most once.
type PushSource struct {
	mu     sync.Mutex
	frame  *Frame
	open   bool
	closed bool
	now    func() time.Time
}

func NewPushSource() *PushSource {
	return &PushSource{now: time.Now}
}

func (p *PushSource) Name() string { return "push" }

func (p *PushSource) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return &DeviceError{Source: p.Name(), Err: errors.New("source already closed")}
	}
	p.open = true
	return nil
}

// Push stores data as the latest frame. It fails once the source is closed.
func (p *PushSource) Push(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty frame")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return &DeviceError{Source: p.Name(), Err: errors.New("source closed")}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	p.frame = &Frame{Data: buf, CapturedAt: p.now()}
	return nil
}

func (p *PushSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.open {
		return Frame{}, &DeviceError{Source: p.Name(), Err: errors.New("source not open")}
	}
	if p.frame == nil {
		return Frame{}, ErrNoFrame
	}
	f := *p.frame
	p.frame = nil
	return f, nil
}

func (p *PushSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.frame = nil
	return nil
}
