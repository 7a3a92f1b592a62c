package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/querychat/querychat/internal/pipeline"
)

type chatRequest struct {
	Message    string `json:"message"`
	SessionID  string `json:"session_id"`
	DataSource string `json:"data_source"`
	// Interpretation is opt-in; it costs an extra backend call per turn.
	IncludeInterpretation bool `json:"include_interpretation"`
}

// handleChat runs the pipeline and relays its events as server-sent events,
// one "data:" frame per event, flushed immediately so the client sees
// progress while the backend is still working.
func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat dependencies are not configured", false, nil)
		return
	}

	var request chatRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", "message is required", false, nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(r.Context(), w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "response writer does not support streaming", false, nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := deps.Chat.Run(r.Context(), pipeline.Request{
		Message:               request.Message,
		SessionID:             request.SessionID,
		DataSource:            request.DataSource,
		IncludeInterpretation: request.IncludeInterpretation,
	})
	for event := range events {
		if err := writeSSE(w, flusher, event); err != nil {
			// Client went away; the pipeline notices via r.Context().
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event pipeline.Event) error {
	frame := make(map[string]any, len(event.Fields)+1)
	for key, value := range event.Fields {
		frame[key] = value
	}
	frame["type"] = string(event.Type)

	encoded, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode stream event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", encoded); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
