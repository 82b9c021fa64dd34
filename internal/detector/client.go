package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/h2non/filetype"

	"github.com/aarthig0611/face-recognition-app/internal/constants"
	"github.com/aarthig0611/face-recognition-app/internal/logger"
)

const defaultDetectorURL = "http://localhost:8000"

var log = logger.Log

// Client calls the detection server: POST {baseURL}/detect with a multipart
// "file" field, answered by {"faces": [...]}.
type Client struct {
	baseURL  string
	client   *http.Client
	breaker  *circuitBreaker
	maxImage int
}

// NewClient creates a new detector client
func NewClient(baseURL string, timeout time.Duration, breaker BreakerConfig) *Client {
	if baseURL == "" {
		baseURL = defaultDetectorURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		breaker:  newCircuitBreaker(breaker),
		maxImage: constants.MaxImageSize,
	}
}

// Detect downsizes large images before upload and maps the returned boxes back
// to the original image's pixels.
func (c *Client) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	prepared, scale, err := ResizeImage(image, c.maxImage)
	if err != nil {
		return nil, err
	}

	detections, err := c.breaker.execute(ctx, func() ([]Detection, error) {
		body, err := c.postMultipartImage(ctx, "/detect", prepared)
		if err != nil {
			return nil, err
		}
		var resp detectResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		return resp.Faces, nil
	})
	if err != nil {
		return nil, err
	}

	if scale != 1 {
		for i := range detections {
			b := &detections[i].Box
			b.X, b.Y, b.Width, b.Height = b.X/scale, b.Y/scale, b.Width/scale, b.Height/scale
		}
	}
	if detections == nil {
		detections = []Detection{}
	}
	return detections, nil
}

// Health checks GET {baseURL}/health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// BreakerState returns the circuit breaker state.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	mimeType := "application/octet-stream"
	if kind, err := filetype.Match(imageData); err == nil && kind != filetype.Unknown {
		mimeType = kind.MIME.Value
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame"`)
	h.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
