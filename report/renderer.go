package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// ErrRendererUnavailable is returned while the circuit to the renderer is open.
var ErrRendererUnavailable = errors.New("report: renderer unavailable")

// Document is a rendered report.
type Document struct {
	ContentType string
	Filename    string
	Body        []byte
}

// StatusError carries a non-2xx renderer response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("report: renderer returned status %d", e.Code)
}

// BreakerConfig tunes the circuit guarding the renderer.
type BreakerConfig struct {
	// ConsecutiveFailures trips the circuit. Zero means 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before probing. Zero means 30s.
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

// Client hands report models to the external renderer service. The renderer
// owns layout, currency formatting and output format.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient constructs a client with the default circuit settings.
func NewClient(baseURL string) *Client {
	return NewClientWithBreaker(baseURL, BreakerConfig{})
}

// NewClientWithBreaker constructs a client whose render calls are guarded by a
// circuit breaker. Renderer 4xx answers do not count as failures.
func NewClientWithBreaker(baseURL string, cfg BreakerConfig) *Client {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.ConsecutiveFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "report-renderer",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var status *StatusError
			if errors.As(err, &status) {
				return status.Code < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit state changed", slog.String("name", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: breaker,
	}
}

// Ping checks if the renderer is available. It bypasses the circuit.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// State reports the circuit state: closed, half-open or open.
func (c *Client) State() string {
	return c.breaker.State().String()
}

// Render posts model as JSON to the named template and returns the document.
func (c *Client) Render(ctx context.Context, template string, model any) (Document, error) {
	payload, err := json.Marshal(model)
	if err != nil {
		return Document{}, fmt.Errorf("report: encode model: %w", err)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.render(ctx, template, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Document{}, fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	if err != nil {
		return Document{}, err
	}
	return out.(Document), nil
}

func (c *Client) render(ctx context.Context, template string, payload []byte) (Document, error) {
	url := fmt.Sprintf("%s/render/%s", c.baseURL, template)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Document{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Document{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return Document{}, &StatusError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	return Document{ContentType: contentType, Filename: template + ".pdf", Body: body}, nil
}
