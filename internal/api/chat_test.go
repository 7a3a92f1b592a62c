package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newChatBackend simulates the generate/execute/interpret chain for one
// query id.
func newChatBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate-sql", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"query_id":"q-chat-1","sql":"SELECT name FROM users","intent":"sql"}`)
	})
	mux.HandleFunc("GET /api/execute/q-chat-1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"name":"ada"},{"name":"grace"}],"total_count":2}`)
	})
	mux.HandleFunc("POST /api/interpret/q-chat-1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"interpretation":{"summary":"two users are registered"}}`)
	})
	return httptest.NewServer(mux)
}

func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("frame without data prefix: %q", block)
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &frame); err != nil {
			t.Fatalf("frame is not valid JSON: %v (%q)", err, block)
		}
		frames = append(frames, frame)
	}
	return frames
}

func frameTypes(frames []map[string]any) []string {
	types := make([]string, 0, len(frames))
	for _, frame := range frames {
		value, _ := frame["type"].(string)
		types = append(types, value)
	}
	return types
}

func TestChatStreamsFullEventSequence(t *testing.T) {
	server := newChatBackend(t)
	defer server.Close()

	handler, _ := newTestHandler(t, server.URL)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"message":"list users","include_interpretation":true}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("cache control = %q", got)
	}

	frames := parseSSE(t, rr.Body.String())
	want := []string{"session", "sql", "data", "interpretation", "done"}
	got := frameTypes(frames)
	if len(got) != len(want) {
		t.Fatalf("frame types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d is %q, want %q (stream %v)", i, got[i], want[i], got)
		}
	}

	if id, _ := frames[0]["session_id"].(string); id == "" {
		t.Fatal("session frame is missing session_id")
	}
	if sql, _ := frames[1]["sql"].(string); sql != "SELECT name FROM users" {
		t.Fatalf("sql frame = %v", frames[1])
	}
	displayInfo, ok := frames[2]["display_info"].(map[string]any)
	if !ok {
		t.Fatalf("data frame missing display_info: %v", frames[2])
	}
	if displayInfo["total_rows"] != float64(2) {
		t.Fatalf("display_info = %v", displayInfo)
	}
	analysis, _ := frames[3]["analysis"].(string)
	if !strings.Contains(analysis, "two users are registered") {
		t.Fatalf("analysis = %q", analysis)
	}
}

// Interpretation is opt-in: a request that does not ask for it must not
// trigger the extra backend call or the interpretation frame.
func TestChatOmittedInterpretationFlagStreamsNoInterpretation(t *testing.T) {
	server := newChatBackend(t)
	defer server.Close()

	handler, _ := newTestHandler(t, server.URL)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"message":"list users"}`)))

	got := frameTypes(parseSSE(t, rr.Body.String()))
	want := []string{"session", "sql", "data", "done"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("frame types = %v, want %v", got, want)
	}
}

func TestChatStreamsGuidanceOn422(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate-sql", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":{"message":"That isn't in this dataset","suggested_queries":["show all users"]}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	handler, _ := newTestHandler(t, server.URL)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"message":"weather tomorrow"}`)))

	frames := parseSSE(t, rr.Body.String())
	got := frameTypes(frames)
	want := []string{"session", "guidance", "done"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("frame types = %v, want %v", got, want)
	}
	if frames[1]["message"] != "That isn't in this dataset" {
		t.Fatalf("guidance frame = %v", frames[1])
	}
}

func TestChatStreamsErrorWhenBackendFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"detail":"model unavailable"}`)
	}))
	defer server.Close()

	handler, _ := newTestHandler(t, server.URL)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"message":"list users"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("stream must open before the failure, status = %d", rr.Code)
	}
	frames := parseSSE(t, rr.Body.String())
	got := frameTypes(frames)
	if len(got) != 2 || got[0] != "session" || got[1] != "error" {
		t.Fatalf("frame types = %v, want [session error]", got)
	}
	message, _ := frames[1]["message"].(string)
	if !strings.Contains(message, "model unavailable") {
		t.Fatalf("error frame = %v", frames[1])
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	server := newChatBackend(t)
	defer server.Close()

	handler, _ := newTestHandler(t, server.URL)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"message":"  "}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestChatFollowUpReusesSession(t *testing.T) {
	var lastQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate-sql", func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&request)
		lastQuery = request.Query
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"query_id":"q-chat-1","sql":"SELECT name FROM users"}`)
	})
	mux.HandleFunc("GET /api/execute/q-chat-1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[],"total_count":0}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	handler, _ := newTestHandler(t, server.URL)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"message":"list users","include_interpretation":false}`)))
	frames := parseSSE(t, first.Body.String())
	sessionID, _ := frames[0]["session_id"].(string)
	if sessionID == "" {
		t.Fatal("first turn produced no session id")
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"message":"only the first ten","session_id":"`+sessionID+`","include_interpretation":false}`)))
	secondFrames := parseSSE(t, second.Body.String())
	if got, _ := secondFrames[0]["session_id"].(string); got != sessionID {
		t.Fatalf("session id changed across turns: %q vs %q", got, sessionID)
	}

	if !strings.Contains(lastQuery, "CONVERSATION HISTORY") {
		t.Fatal("follow-up was not enriched with conversation context")
	}
	if !strings.Contains(lastQuery, "User asked: list users") {
		t.Fatalf("context missing prior question: %q", lastQuery)
	}
}
