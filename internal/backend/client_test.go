package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, server
}

func TestGenerateDefaultsToSQLOutcome(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate-sql" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["query"] != "list pools" {
			t.Fatalf("query = %q", body["query"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query_id": "q-123",
			"sql":      "SELECT * FROM pools",
		})
	}))

	result, err := client.Generate(context.Background(), "list pools")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Outcome != OutcomeSQL {
		t.Fatalf("Outcome = %q, want %q", result.Outcome, OutcomeSQL)
	}
	if result.QueryID != "q-123" || result.SQL != "SELECT * FROM pools" {
		t.Fatalf("result = %+v", result)
	}
}

func TestGenerateParsesIntents(t *testing.T) {
	tests := []struct {
		intent string
		want   Outcome
	}{
		{"general", OutcomeGeneral},
		{"mixed", OutcomeMixed},
		{"sql", OutcomeSQL},
		{"", OutcomeSQL},
	}
	for _, tt := range tests {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query_id":       "q-1",
				"sql":            "SELECT 1",
				"intent":         tt.intent,
				"general_answer": "here is an answer",
			})
		}))
		result, err := client.Generate(context.Background(), "hi")
		if err != nil {
			t.Fatalf("intent %q: Generate() error = %v", tt.intent, err)
		}
		if result.Outcome != tt.want {
			t.Fatalf("intent %q: Outcome = %q, want %q", tt.intent, result.Outcome, tt.want)
		}
	}
}

func TestGenerateMapsUnprocessableToGuidance(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"detail": map[string]any{
				"message":           "I don't know that table.",
				"schema_overview":   map[string]any{"tables": []any{"pools"}},
				"suggested_queries": []string{"list pools"},
			},
		})
	}))

	result, err := client.Generate(context.Background(), "show me the flurbles")
	if err != nil {
		t.Fatalf("Generate() error = %v, guidance must not be an error", err)
	}
	if result.Outcome != OutcomeGuidance {
		t.Fatalf("Outcome = %q, want %q", result.Outcome, OutcomeGuidance)
	}
	if result.Guidance == nil || result.Guidance.Message != "I don't know that table." {
		t.Fatalf("Guidance = %+v", result.Guidance)
	}
	if len(result.Guidance.SuggestedQueries) != 1 {
		t.Fatalf("SuggestedQueries = %v", result.Guidance.SuggestedQueries)
	}
}

func TestGenerateGuidanceDefaultsMessage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":{}}`))
	}))

	result, err := client.Generate(context.Background(), "???")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Guidance.Message == "" {
		t.Fatal("expected default guidance message")
	}
	if result.Guidance.SuggestedQueries == nil {
		t.Fatal("SuggestedQueries should be empty, not nil")
	}
}

func TestGeneratePreservesUpstreamStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"model unavailable"}`))
	}))

	_, err := client.Generate(context.Background(), "list pools")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("StatusCode = %d", statusErr.StatusCode)
	}
	if statusErr.Message != "model unavailable" {
		t.Fatalf("Message = %q", statusErr.Message)
	}
}

func TestExecuteParsesRowsAndTotalCount(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/execute/q-9" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":        []map[string]any{{"name": "pool-a"}, {"name": "pool-b"}},
			"total_count": 2,
		})
	}))

	result, err := client.Execute(context.Background(), "q-9")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.TotalCount == nil || *result.TotalCount != 2 {
		t.Fatalf("TotalCount = %v", result.TotalCount)
	}
}

func TestExecuteNullTotalCount(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[],"total_count":null}`))
	}))

	result, err := client.Execute(context.Background(), "q-9")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.TotalCount != nil {
		t.Fatalf("TotalCount = %v, want nil", *result.TotalCount)
	}
}

func TestDownloadStreamsBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/download/q-7" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("name,status\npool-a,up\n"))
	}))

	body, contentType, err := client.Download(context.Background(), "q-7")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer func() { _ = body.Close() }()

	if contentType != "text/csv" {
		t.Fatalf("contentType = %q", contentType)
	}
	content, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(content) != "name,status\npool-a,up\n" {
		t.Fatalf("content = %q", content)
	}
}

func TestHealthReportsCacheSize(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "cache_size": 12})
	}))

	status, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if status.CacheSize != 12 {
		t.Fatalf("CacheSize = %d", status.CacheSize)
	}
}

func TestIsTimeoutDetectsClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:         server.URL,
		DownloadTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, _, err = client.Download(context.Background(), "q-1")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTimeout(err) {
		t.Fatalf("IsTimeout() = false for %v", err)
	}
}

func TestIsTimeoutFalseForStatusError(t *testing.T) {
	if IsTimeout(&StatusError{StatusCode: 500, Message: "boom"}) {
		t.Fatal("status error is not a timeout")
	}
	if IsTimeout(nil) {
		t.Fatal("nil is not a timeout")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
