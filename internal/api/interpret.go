package api

import (
	"net/http"

	"github.com/querychat/querychat/internal/config"
	"github.com/querychat/querychat/internal/formatter"
)

// handleInterpret serves on-demand interpretation for a cached query,
// outside the chat stream. The query must still be in the backend's cache.
func handleInterpret(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	queryID := r.PathValue("query_id")
	client := deps.Backends.Lookup(r.URL.Query().Get("data_source"))

	// Execute first: the interpretation disclaimer depends on the true
	// dataset size, which only the execute response carries.
	executed, err := client.Execute(r.Context(), queryID)
	if err != nil {
		writeBackendError(r.Context(), w, err)
		return
	}
	raw, err := client.Interpret(r.Context(), queryID)
	if err != nil {
		writeBackendError(r.Context(), w, err)
		return
	}

	payload := formatter.BuildInterpretationPayload(raw, executed.TotalCount, cfg.Backend.RowCacheLimit)
	writeJSON(w, http.StatusOK, payload)
}
