package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/querychat/querychat/internal/feedback"
)

type feedbackRequest struct {
	Type         string   `json:"type"`
	QueryID      *string  `json:"query_id"`
	UserQuestion *string  `json:"user_question"`
	SQLQuery     *string  `json:"sql_query"`
	Description  *string  `json:"description"`
	Tags         []string `json:"tags"`
	Timestamp    string   `json:"timestamp"`
}

func handleFeedback(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Feedback == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "FEEDBACK_NOT_CONFIGURED", "feedback capture is not configured", false, nil)
		return
	}

	var request feedbackRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid feedback request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Type) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TYPE_REQUIRED", "feedback type is required", false, nil)
		return
	}

	err := deps.Feedback.Append(feedback.Record{
		Type:         request.Type,
		QueryID:      request.QueryID,
		UserQuestion: request.UserQuestion,
		SQLQuery:     request.SQLQuery,
		Description:  request.Description,
		Tags:         request.Tags,
		Timestamp:    request.Timestamp,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "FEEDBACK_WRITE_FAILED", "failed to record feedback", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Feedback submitted successfully",
	})
}
