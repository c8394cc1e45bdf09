package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"watchpost/internal/clock"
	"watchpost/internal/config"
	"watchpost/internal/logging"
)

const (
	userAgent      = "Watchpost/0.1.0"
	apiKeyHeader   = "X-API-Key"
	uploadField    = "file"
	uploadFilename = "capture.jpg"
	errorBodyLimit = 2048
)

// Reachability answers whether the backend is worth an attempt.
type Reachability interface {
	Reachable(ctx context.Context) bool
	Invalidate()
	Address() string
}

// HTTPClient is the production Client.
type HTTPClient struct {
	imageURL     string
	heartbeatURL string
	alertURL     string
	apiKey       string

	httpClient       *http.Client
	heartbeatTimeout time.Duration
	probe            Reachability
	boundary         func() string
	logger           *slog.Logger
}

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithReachability replaces the default network probe.
func WithReachability(probe Reachability) Option {
	return func(c *HTTPClient) {
		if probe != nil {
			c.probe = probe
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewHTTPClient builds a client for the configured backend.
func NewHTTPClient(cfg *config.Config, clk clock.Clock, opts ...Option) *HTTPClient {
	client := &HTTPClient{
		imageURL:         cfg.ImageURL(),
		heartbeatURL:     cfg.HeartbeatURL(),
		alertURL:         cfg.AlertURL(),
		apiKey:           cfg.Backend.APIKey,
		httpClient:       &http.Client{Timeout: cfg.DeliveryTimeout()},
		heartbeatTimeout: time.Duration(cfg.Backend.HeartbeatTimeout) * time.Second,
		boundary:         func() string { return "----WatchpostBoundary" + uuid.NewString() },
		logger:           logging.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.probe == nil {
		client.probe = NewProbeFromConfig(cfg, clk)
	}
	client.logger = logging.NewComponentLogger(client.logger, "delivery")
	return client
}

// Reachable reports whether the backend answered the most recent probe.
func (c *HTTPClient) Reachable(ctx context.Context) bool {
	return c.probe.Reachable(ctx)
}

// Address is the local address used to reach the backend, if known.
func (c *HTTPClient) Address() string {
	return c.probe.Address()
}

// Invalidate drops the cached reachability result.
func (c *HTTPClient) Invalidate() {
	c.probe.Invalidate()
}

// Deliver makes exactly one upload attempt.
func (c *HTTPClient) Deliver(ctx context.Context, upload Upload) Outcome {
	if len(upload.Data) == 0 {
		return Outcome{Kind: OutcomeRejected, Err: errors.New("empty upload")}
	}
	body, contentType, err := c.encodeUpload(upload.Data)
	if err != nil {
		return Outcome{Kind: OutcomeTransportError, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.imageURL, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: OutcomeTransportError, Err: fmt.Errorf("build upload request: %w", err)}
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", contentType)

	status, err := c.do(req)
	switch {
	case err == nil:
		c.logger.Debug("upload accepted",
			logging.String(logging.FieldRecordKey, upload.Key),
			logging.Int("status", status),
			logging.Int("bytes", len(upload.Data)),
		)
		return Outcome{Kind: OutcomeSuccess, StatusCode: status}
	case status != 0:
		return Outcome{Kind: OutcomeRejected, StatusCode: status, Err: err}
	default:
		c.probe.Invalidate()
		return Outcome{Kind: OutcomeTransportError, Err: err}
	}
}

// SendHeartbeat posts the liveness payload.
func (c *HTTPClient) SendHeartbeat(ctx context.Context, heartbeat Heartbeat) error {
	if c.heartbeatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.heartbeatTimeout)
		defer cancel()
	}
	return c.postJSON(ctx, c.heartbeatURL, heartbeat)
}

// PostAlert posts intrusion metadata.
func (c *HTTPClient) PostAlert(ctx context.Context, alert Alert) error {
	return c.postJSON(ctx, c.alertURL, alert)
}

func (c *HTTPClient) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	status, err := c.do(req)
	if err != nil && status == 0 {
		c.probe.Invalidate()
	}
	return err
}

// do sends req and returns the status code when a response arrived.
func (c *HTTPClient) do(req *http.Request) (int, error) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if !accepted(resp.StatusCode) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// encodeUpload assembles the whole multipart body up front so the request
// carries an exact Content-Length.
func (c *HTTPClient) encodeUpload(data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	buf.Grow(len(data) + 512)
	writer := multipart.NewWriter(&buf)
	if err := writer.SetBoundary(c.boundary()); err != nil {
		return nil, "", fmt.Errorf("set multipart boundary: %w", err)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadField, uploadFilename))
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write multipart payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}
