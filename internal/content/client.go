package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/catalog/internal/domain"
	"github.com/mmcdole/catalog/internal/telemetry"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Catalog/1.0"
)

// ClientConfig holds API connection settings.
type ClientConfig struct {
	BaseURL string
	AppID   string
	AppKey  string
	// Timeout is the transport default; the fetch layer adds none of its own.
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Client performs authenticated requests against the catalog API.
type Client struct {
	baseURL    string
	appID      string
	appKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new API client
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		appID:   cfg.AppID,
		appKey:  cfg.AppKey,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: telemetry.NewInstrumentedTransport(cfg.Transport),
		},
		logger: logger,
	}
}

// errorBody is the API's failure envelope.
type errorBody struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"_errors"`
}

// Get performs an authenticated GET and returns the body of a 2xx response.
// Other responses and transport failures come back as *domain.UpstreamError.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL = reqURL + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	// Credential header names are sent verbatim, not canonicalized
	req.Header["app_id"] = []string{c.appID}
	req.Header["app_key"] = []string{c.appKey}
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debug("api request", "url", reqURL, "request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("api request failed", "error", err, "request_id", requestID)
		return nil, &domain.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		message := ""
		if json.Unmarshal(body, &eb) == nil && len(eb.Errors) > 0 {
			message = eb.Errors[0].Message
		}
		c.logger.Error("api request error", "status", resp.StatusCode, "message", message, "request_id", requestID)
		return nil, domain.NewUpstreamError(resp.StatusCode, message)
	}

	return body, nil
}
