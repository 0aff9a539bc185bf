// Package catalog talks to the remote catalog provider and turns its raw
// records into canonical tracks.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"soundstorm/internal/apperrors"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the iTunes Search API endpoint root
	DefaultBaseURL = "https://itunes.apple.com"

	// DefaultTimeout for HTTP requests
	DefaultTimeout = 15 * time.Second

	// DefaultRequestsPerSecond keeps well under the provider's ~20 req/min guidance for bursts
	DefaultRequestsPerSecond = 2

	// maxResponseBytes bounds a single search response
	maxResponseBytes = 4 << 20
)

// Provider is the text-search surface of the catalog.
type Provider interface {
	Search(ctx context.Context, term string, limit int) ([]RawTrack, error)
}

// ITunesClient implements Provider against the iTunes Search API.
type ITunesClient struct {
	baseURL    string
	country    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// ClientOption configures an ITunesClient.
type ClientOption func(*ITunesClient)

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *ITunesClient) {
		c.baseURL = u
	}
}

// WithCountry restricts results to a storefront country code.
func WithCountry(country string) ClientOption {
	return func(c *ITunesClient) {
		c.country = country
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *ITunesClient) {
		c.httpClient = client
	}
}

// WithRateLimit sets the sustained request rate. Zero or less disables limiting.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *ITunesClient) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *logrus.Logger) ClientOption {
	return func(c *ITunesClient) {
		c.logger = logger
	}
}

// NewITunesClient creates a new catalog client.
func NewITunesClient(opts ...ClientOption) *ITunesClient {
	c := &ITunesClient{
		baseURL:   DefaultBaseURL,
		userAgent: "SoundStorm/1.0",
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
		logger:  logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// searchResponse is the envelope returned by /search.
type searchResponse struct {
	ResultCount *int       `json:"resultCount"`
	Results     []RawTrack `json:"results"`
}

// Search runs a song search for term. Every failure is reported as *apperrors.NetworkError.
func (c *ITunesClient) Search(ctx context.Context, term string, limit int) ([]RawTrack, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &apperrors.NetworkError{Op: "search", Err: fmt.Errorf("rate limiter: %w", err)}
	}

	params := url.Values{}
	params.Set("term", term)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("media", "music")
	params.Set("entity", "song")
	if c.country != "" {
		params.Set("country", c.country)
	}
	searchURL := c.baseURL + "/search?" + params.Encode()

	c.logger.WithFields(logrus.Fields{
		"term":  term,
		"limit": limit,
	}).Debug("Searching catalog")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, &apperrors.NetworkError{Op: "search", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperrors.NetworkError{Op: "search", Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"term":   term,
			"status": resp.StatusCode,
		}).Warn("Catalog returned non-OK status")
		return nil, &apperrors.NetworkError{Op: "search", Err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &apperrors.NetworkError{Op: "search", Err: fmt.Errorf("read response: %w", err)}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &apperrors.NetworkError{Op: "search", Err: fmt.Errorf("parse response: %w", err)}
	}
	if parsed.ResultCount == nil && parsed.Results == nil {
		return nil, &apperrors.NetworkError{Op: "search", Err: fmt.Errorf("unexpected response shape")}
	}

	return parsed.Results, nil
}
