package api

import (
	"net/http"
)

func handleSchemaOverview(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	client := deps.Backends.Lookup(r.URL.Query().Get("data_source"))

	overview, err := client.Schema(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "schema overview is unavailable", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
