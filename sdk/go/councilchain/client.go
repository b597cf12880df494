package councilchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// DefaultPollInterval is how often WaitForReview checks job progress.
const DefaultPollInterval = 2 * time.Second

// Client wraps the HTTP interactions with the CouncilChain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu     sync.RWMutex
	apiKey string
}

// ReviewSubmission represents the payload required to create a review job.
type ReviewSubmission struct {
	ID       string         `json:"id,omitempty"`
	URL      string         `json:"url"`
	Notes    string         `json:"notes,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VerdictSummary contains the council outcome attached to a finished job.
type VerdictSummary struct {
	ContentType   string  `json:"content_type"`
	Approved      bool    `json:"approved"`
	ApprovalCount int     `json:"approval_count"`
	RejectCount   int     `json:"reject_count"`
	ApprovalRate  float64 `json:"approval_rate"`
	Summary       string  `json:"summary,omitempty"`
	ChainID       string  `json:"chain_id,omitempty"`
	BlockNumber   string  `json:"block_number,omitempty"`
}

// ReviewJob mirrors the server side job representation.
type ReviewJob struct {
	ID         string          `json:"id"`
	URL        string          `json:"url"`
	Notes      string          `json:"notes,omitempty"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `json:"last_error,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Result     *VerdictSummary `json:"result,omitempty"`
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at"`
}

// Terminal reports whether the job reached a final state.
func (j *ReviewJob) Terminal() bool {
	return j != nil && (j.Status == "succeeded" || j.Status == "failed")
}

// APIError represents server side validation or internal errors. StatusCode
// is filled from the HTTP response and never travels in the JSON body, so a
// payload echoing the field cannot reset it.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("councilchain api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("councilchain api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the CouncilChain API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// SetAPIKey stores the key sent as a bearer token on subsequent calls.
// A client without a key works against servers with auth disabled.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

// APIKey returns the currently stored key.
func (c *Client) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// SubmitReview creates a new review job. The server answers immediately;
// poll GetReview or use WaitForReview to obtain the verdict.
func (c *Client) SubmitReview(ctx context.Context, submission ReviewSubmission) (ReviewJob, error) {
	var job ReviewJob
	if err := c.post(ctx, "/api/v1/reviews", submission, &job); err != nil {
		return ReviewJob{}, err
	}
	return job, nil
}

// GetReview fetches the current state of a review job.
func (c *Client) GetReview(ctx context.Context, reviewID string) (ReviewJob, error) {
	var job ReviewJob
	endpoint := "/api/v1/reviews/" + url.PathEscape(reviewID)
	if err := c.get(ctx, endpoint, &job); err != nil {
		return ReviewJob{}, err
	}
	return job, nil
}

// WaitForReview polls until the job reaches a terminal state or the context
// expires. A non positive interval falls back to DefaultPollInterval.
func (c *Client) WaitForReview(ctx context.Context, reviewID string, interval time.Duration) (ReviewJob, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.GetReview(ctx, reviewID)
		if err != nil {
			return ReviewJob{}, err
		}
		if job.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return ReviewJob{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if key := c.APIKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				// try direct decode into apiErr if server returned flat payload
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
