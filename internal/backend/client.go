// Package backend is the typed client for the natural-language-to-SQL
// service. Every query flows through an opaque query id minted by Generate
// and threaded through Execute, Interpret and Download.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	BaseURL string
	// Three operation classes with very different latency profiles:
	// liveness probes, query-shaped calls bounded by the row cache, and
	// bulk CSV retrieval which is not.
	HealthTimeout   time.Duration
	QueryTimeout    time.Duration
	DownloadTimeout time.Duration
}

type Client struct {
	baseURL  string
	health   *http.Client
	query    *http.Client
	download *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}
	queryTimeout := cfg.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	downloadTimeout := cfg.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = 300 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		health:   &http.Client{Timeout: healthTimeout},
		query:    &http.Client{Timeout: queryTimeout},
		download: &http.Client{Timeout: downloadTimeout},
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Generate asks the backend to turn a (possibly context-enriched) message
// into SQL. A 422 response is the distinguished guidance outcome, not a
// failure.
func (c *Client) Generate(ctx context.Context, message string) (GenerateResult, error) {
	body, err := json.Marshal(map[string]string{"query": message})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate-sql", bytes.NewReader(body))
	if err != nil {
		return GenerateResult{}, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.query.Do(req)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("request sql generation: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("read generate response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return decodeGuidance(raw)
	}
	if resp.StatusCode >= 400 {
		return GenerateResult{}, statusError(resp.StatusCode, raw)
	}

	var parsed struct {
		QueryID       string `json:"query_id"`
		SQL           string `json:"sql"`
		Intent        string `json:"intent"`
		GeneralAnswer string `json:"general_answer"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return GenerateResult{}, fmt.Errorf("decode generate response: %w", err)
	}

	result := GenerateResult{
		QueryID:       parsed.QueryID,
		SQL:           parsed.SQL,
		GeneralAnswer: parsed.GeneralAnswer,
	}
	switch parsed.Intent {
	case "general":
		result.Outcome = OutcomeGeneral
	case "mixed":
		result.Outcome = OutcomeMixed
	default:
		// Legacy responses omit intent entirely.
		result.Outcome = OutcomeSQL
	}
	return result, nil
}

// Execute fetches the cached result rows for a previously generated query.
func (c *Client) Execute(ctx context.Context, queryID string) (ExecuteResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/execute/"+url.PathEscape(queryID), nil)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("build execute request: %w", err)
	}

	resp, err := c.query.Do(req)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("request query execution: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("read execute response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return ExecuteResult{}, statusError(resp.StatusCode, raw)
	}

	var parsed struct {
		Data       []map[string]any `json:"data"`
		TotalCount *int             `json:"total_count"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ExecuteResult{}, fmt.Errorf("decode execute response: %w", err)
	}
	return ExecuteResult{Rows: parsed.Data, TotalCount: parsed.TotalCount}, nil
}

// Interpret returns the raw interpretation object for a query. The shape
// varies between backend versions, so it stays a generic JSON object and
// the formatter package normalizes it.
func (c *Client) Interpret(ctx context.Context, queryID string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/interpret/"+url.PathEscape(queryID), nil)
	if err != nil {
		return nil, fmt.Errorf("build interpret request: %w", err)
	}

	resp, err := c.query.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request interpretation: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read interpret response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, statusError(resp.StatusCode, raw)
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode interpret response: %w", err)
	}
	return parsed, nil
}

// Schema fetches table metadata and suggested starter queries.
func (c *Client) Schema(ctx context.Context) (SchemaOverview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/schema/overview", nil)
	if err != nil {
		return SchemaOverview{}, fmt.Errorf("build schema request: %w", err)
	}

	resp, err := c.query.Do(req)
	if err != nil {
		return SchemaOverview{}, fmt.Errorf("request schema overview: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return SchemaOverview{}, fmt.Errorf("read schema response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return SchemaOverview{}, statusError(resp.StatusCode, raw)
	}

	var parsed SchemaOverview
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return SchemaOverview{}, fmt.Errorf("decode schema response: %w", err)
	}
	return parsed, nil
}

// Download streams the full CSV result set for a query. The caller owns
// the returned body. Uses the long budget: exports are not bounded by the
// row cache.
func (c *Client) Download(ctx context.Context, queryID string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/download/"+url.PathEscape(queryID), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request dataset download: %w", err)
	}
	if resp.StatusCode >= 400 {
		raw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, "", fmt.Errorf("read download error body: %w", readErr)
		}
		return nil, "", statusError(resp.StatusCode, raw)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/csv"
	}
	return resp.Body, contentType, nil
}

// Health probes the backend with the short budget and reports its cache
// size.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.health.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("request backend health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("read health response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return HealthStatus{}, statusError(resp.StatusCode, raw)
	}

	var parsed struct {
		Status    string `json:"status"`
		CacheSize int    `json:"cache_size"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return HealthStatus{}, fmt.Errorf("decode health response: %w", err)
	}
	return HealthStatus{Status: parsed.Status, CacheSize: parsed.CacheSize}, nil
}

// IsTimeout reports whether an error from any client call was a timeout,
// either from the per-class client budget or the request context.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	return false
}

func decodeGuidance(raw []byte) (GenerateResult, error) {
	var parsed struct {
		Detail struct {
			Message          string         `json:"message"`
			SchemaOverview   map[string]any `json:"schema_overview"`
			SuggestedQueries []string       `json:"suggested_queries"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return GenerateResult{}, fmt.Errorf("decode guidance response: %w", err)
	}
	message := parsed.Detail.Message
	if message == "" {
		message = "I couldn't map that request to known data."
	}
	suggested := parsed.Detail.SuggestedQueries
	if suggested == nil {
		suggested = []string{}
	}
	return GenerateResult{
		Outcome: OutcomeGuidance,
		Guidance: &Guidance{
			Message:          message,
			SchemaOverview:   parsed.Detail.SchemaOverview,
			SuggestedQueries: suggested,
		},
	}, nil
}

func statusError(status int, raw []byte) error {
	message := strings.TrimSpace(string(raw))
	var parsed struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Message != "" {
			message = parsed.Message
		} else if detail, ok := parsed.Detail.(string); ok && detail != "" {
			message = detail
		}
	}
	const maxMessage = 512
	if len(message) > maxMessage {
		message = message[:maxMessage]
	}
	return &StatusError{StatusCode: status, Message: message}
}
