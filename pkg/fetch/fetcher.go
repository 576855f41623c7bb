package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/menta2k/image-thumbnailer/pkg/client"
)

// ErrBodyTooLarge is returned when the upstream body exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("upstream body too large")

const (
	DefaultTimeout      = 30 * time.Second
	DefaultUserAgent    = "Image-Thumbnailer/1.0"
	DefaultMaxBodyBytes = 32 << 20
)

// Config holds HTTP fetch settings.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// HTTPFetcher downloads source images over HTTP(S). It does not retry.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// New creates a fetcher with default settings.
func New() *HTTPFetcher {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a fetcher. Zero values fall back to the defaults.
func NewWithConfig(cfg Config) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &HTTPFetcher{
		client:       &http.Client{Timeout: cfg.Timeout},
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// Fetch performs a GET on rawURL and returns the status, headers and body
// whatever the status code is.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*client.Response, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", rawURL, ErrBodyTooLarge, f.maxBodyBytes)
	}

	return &client.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
