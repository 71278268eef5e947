package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	maxFeedBodyBytes   = 4 << 20
)

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient sets the client used for polling.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithHeader adds a request header, e.g. an API key for the judge system.
func WithHeader(key, value string) HTTPOption {
	return func(s *HTTPSource) {
		s.headers.Set(key, value)
	}
}

// HTTPSource polls a REST endpoint that returns a JSON array of wire metrics.
type HTTPSource struct {
	url     string
	client  *http.Client
	headers http.Header
}

// NewHTTPSource creates a source polling url.
func NewHTTPSource(url string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		url:     url,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the source in logs and metrics.
func (s *HTTPSource) Name() string { return "http" }

// Fetch performs one GET and decodes the body.
func (s *HTTPSource) Fetch(ctx context.Context) ([]model.ParticipantMetric, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, unavailable(s.Name(), err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header[k] = v
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, unavailable(s.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxFeedBodyBytes))
		return nil, unavailable(s.Name(), fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	metrics, err := DecodeWireMetrics(io.LimitReader(resp.Body, maxFeedBodyBytes))
	if err != nil {
		return nil, unavailable(s.Name(), err)
	}
	return metrics, nil
}
