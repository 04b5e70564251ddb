// Package client is a typed HTTP client for the leaderboard API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"bomet/pkg/score"
)

var (
	ErrInvalid      = errors.New("client: submission rejected")
	ErrUnauthorized = errors.New("client: admin key rejected")
	ErrServer       = errors.New("client: server error")
)

// APIError carries the status and message returned by the server. It
// matches ErrInvalid, ErrUnauthorized or ErrServer with errors.Is.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrInvalid:
		return e.Status == http.StatusBadRequest
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrServer:
		return e.Status >= http.StatusInternalServerError
	}
	return false
}

// Submission is the body of POST /api/scores.
type Submission struct {
	PlayerName string          `json:"playerName"`
	Score      float64         `json:"score"`
	Date       *time.Time      `json:"date,omitempty"`
	Stats      json.RawMessage `json:"stats,omitempty"`
}

// Health is the body of GET /healthz.
type Health struct {
	OK     bool    `json:"ok"`
	Uptime float64 `json:"uptime"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL. A nil httpClient gets an 8s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// SubmitScore posts a score and returns the stored record.
func (c *Client) SubmitScore(ctx context.Context, sub Submission) (score.Record, error) {
	var out struct {
		Entry score.Record `json:"entry"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/scores", sub, &out); err != nil {
		return score.Record{}, err
	}
	return out.Entry, nil
}

// Leaderboard reads the top entries. A non-positive limit uses the server
// default.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]score.Record, error) {
	path := "/api/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []score.Record
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Clear removes every entry and returns how many were deleted.
func (c *Client) Clear(ctx context.Context, adminKey string) (int64, error) {
	var out struct {
		DeletedCount int64 `json:"deletedCount"`
	}
	path := "/api/leaderboard?key=" + url.QueryEscape(adminKey)
	if err := c.do(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return 0, err
	}
	return out.DeletedCount, nil
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
