package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aarthig0611/face-recognition-app/internal/constants"
)

// DefaultMaxSnapshotFailures is how many consecutive failed snapshot requests
// turn into a DeviceError.
const DefaultMaxSnapshotFailures = 5

// SnapshotSource fetches a still image from an IP camera URL on every Next.
type SnapshotSource struct {
	url         string
	client      *http.Client
	maxFailures int
	failures    int
}

func NewSnapshotSource(url string, timeout time.Duration) *SnapshotSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SnapshotSource{
		url:         url,
		client:      &http.Client{Timeout: timeout},
		maxFailures: DefaultMaxSnapshotFailures,
	}
}

func (s *SnapshotSource) Name() string { return "snapshot" }

// Open fetches one snapshot to check the camera is reachable.
func (s *SnapshotSource) Open(ctx context.Context) error {
	if s.url == "" {
		return &DeviceError{Source: s.Name(), Err: errors.New("snapshot URL is required")}
	}
	if _, err := s.fetch(ctx); err != nil {
		return &DeviceError{Source: s.Name(), Err: err}
	}
	return nil
}

// Next returns a fresh snapshot. Single failures are returned as plain errors
// (the frame is skipped); maxFailures in a row become a DeviceError.
func (s *SnapshotSource) Next(ctx context.Context) (Frame, error) {
	data, err := s.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}
		s.failures++
		if s.failures >= s.maxFailures {
			return Frame{}, &DeviceError{Source: s.Name(), Err: fmt.Errorf("%d consecutive failures: %w", s.failures, err)}
		}
		return Frame{}, err
	}
	s.failures = 0
	return Frame{Data: data, CapturedAt: time.Now()}, nil
}

func (s *SnapshotSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *SnapshotSource) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("camera error (status %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxUploadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("empty snapshot")
	}
	return body, nil
}
