// Package remote implements store.Backend against a hosted PostgREST-style
// HTTP API, the same relational backend the guest apps talk to.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/guest-services/internal/store"
)

// restPrefix is the path under which tables are exposed.
const restPrefix = "/rest/v1/"

// Client is a thin HTTP client for a PostgREST-style API. It authenticates
// with an API key, and retries with exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int

	// backoff computes the wait before the next attempt when the server
	// does not send Retry-After.
	backoff func(attempt int) time.Duration
}

var _ store.Backend = (*Client)(nil)

// NewClient creates a new REST backend client. The baseURL is the root URL
// of the hosted project (e.g., https://hotel.example.com).
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		backoff:    exponentialBackoff,
	}
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error (%d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error (%d): %s", e.StatusCode, e.Message)
}

// errorBody is the JSON error shape returned by PostgREST.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// Select returns rows of table matching every cond, newest first.
func (c *Client) Select(
	ctx context.Context,
	table string,
	where ...store.Cond,
) ([]store.Row, error) {
	q := filterQuery(where)
	q.Set("select", "*")
	q.Set("order", "created_at.desc")

	var rows []store.Row
	if err := c.do(ctx, http.MethodGet, table, q, nil, &rows); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", table, err)
	}
	return rows, nil
}

// Update patches the row with the given id if it also matches every cond.
// The representation of changed rows is requested so the affected count is
// exact.
func (c *Client) Update(
	ctx context.Context,
	table, id string,
	patch store.Row,
	where ...store.Cond,
) (int64, error) {
	q := filterQuery(append([]store.Cond{store.Eq(store.ColumnID, id)}, where...))

	var rows []store.Row
	if err := c.do(ctx, http.MethodPatch, table, q, patch, &rows); err != nil {
		return 0, fmt.Errorf("updating %s %s: %w", table, id, err)
	}
	return int64(len(rows)), nil
}

// filterQuery renders conds as PostgREST horizontal filters.
func filterQuery(where []store.Cond) url.Values {
	q := url.Values{}
	for _, c := range where {
		switch len(c.Values) {
		case 1:
			q.Add(c.Column, "eq."+fmt.Sprint(c.Values[0]))
		default:
			vals := make([]string, len(c.Values))
			for i, v := range c.Values {
				vals[i] = fmt.Sprint(v)
			}
			q.Add(c.Column, "in.("+strings.Join(vals, ",")+")")
		}
	}
	return q
}

// do builds the request, handles auth, rate limiting with exponential
// backoff, and JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	table string,
	query url.Values,
	body interface{},
	result interface{},
) error {
	endpoint := c.baseURL + restPrefix + url.PathEscape(table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if data != nil {
			bodyReader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Prefer", "return=representation")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, table, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := c.retryAfter(resp, attempt)
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: "rate limited"}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
			var eb errorBody
			if json.Unmarshal(respBody, &eb) == nil && eb.Message != "" {
				apiErr.Code = eb.Code
				apiErr.Message = eb.Message
			}
			return apiErr
		}

		if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, table, err)
		}

		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfter reads the Retry-After header and computes a wait duration,
// falling back to the client's backoff.
func (c *Client) retryAfter(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return c.backoff(attempt)
}

// exponentialBackoff waits 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
