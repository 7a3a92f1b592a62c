package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/querychat/querychat/internal/backend"
)

// handleDownload proxies the full CSV export for a cached query. The body
// streams straight through without buffering; datasets can be far larger
// than the chat row cache.
func handleDownload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	queryID := r.PathValue("query_id")
	client := deps.Backends.Lookup(r.URL.Query().Get("data_source"))

	body, contentType, err := client.Download(r.Context(), queryID)
	if err != nil {
		if backend.IsTimeout(err) {
			writeError(r.Context(), w, http.StatusGatewayTimeout, "DOWNLOAD_TIMEOUT",
				"Download timeout - dataset too large or server busy. Please try again.", true, nil)
			return
		}
		writeBackendError(r.Context(), w, err)
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", downloadFilename(queryID, time.Now()))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func downloadFilename(queryID string, now time.Time) string {
	short := queryID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("attachment; filename=\"query_results_%s_%s.csv\"", short, now.Format("2006-01-02"))
}
