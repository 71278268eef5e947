package feedsim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/types"
)

// Push outcomes.
const (
	ResultAccepted    = "accepted"
	ResultDuplicate   = "duplicate"
	ResultRateLimited = "rate_limited"
	ResultFailed      = "failed"
)

const maxResponseBytes = 8 << 20

// Client talks to the leaderboard HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// Push sends one batch and classifies the response.
func (c *Client) Push(ctx context.Context, boardID string, b Batch) (string, error) {
	body, err := json.Marshal(b)
	if err != nil {
		return ResultFailed, fmt.Errorf("marshal batch: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/boards/"+url.PathEscape(boardID)+"/metrics", body)
	if err != nil {
		return ResultFailed, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return ResultAccepted, nil
	case http.StatusOK:
		var ack types.PushResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&ack); err != nil {
			return ResultFailed, fmt.Errorf("decode ack: %w", err)
		}
		if ack.Duplicate {
			return ResultDuplicate, nil
		}
		return ResultAccepted, nil
	case http.StatusTooManyRequests:
		return ResultRateLimited, nil
	default:
		return ResultFailed, c.failure(resp)
	}
}

// Leaderboard fetches the leaderboard of a board; limit below one fetches
// the server default.
func (c *Client) Leaderboard(ctx context.Context, boardID string, limit int) (types.Leaderboard, error) {
	path := "/boards/" + url.PathEscape(boardID) + "/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return types.Leaderboard{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return types.Leaderboard{}, c.failure(resp)
	}
	var lb types.Leaderboard
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&lb); err != nil {
		return types.Leaderboard{}, fmt.Errorf("decode leaderboard: %w", err)
	}
	return lb, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader = http.NoBody
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) failure(resp *http.Response) error {
	var e types.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&e); err != nil || e.Code == "" {
		return fmt.Errorf("%w: status %d", ErrUnexpected, resp.StatusCode)
	}
	return fmt.Errorf("%w: status %d: %s: %s", ErrUnexpected, resp.StatusCode, e.Code, e.Message)
}
