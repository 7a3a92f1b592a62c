package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querychat/querychat/internal/backend"
	"github.com/querychat/querychat/internal/config"
	"github.com/querychat/querychat/internal/feedback"
	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/pipeline"
)

// ChatRunner produces the ordered event stream for one chat request.
type ChatRunner interface {
	Run(ctx context.Context, req pipeline.Request) <-chan pipeline.Event
}

type Dependencies struct {
	Logger   *slog.Logger
	Chat     ChatRunner
	Backends *backend.Registry
	Feedback *feedback.Log
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(cfg, deps, w, r)
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		handleChat(deps, w, r)
	})
	mux.HandleFunc("GET /schema/overview", func(w http.ResponseWriter, r *http.Request) {
		handleSchemaOverview(deps, w, r)
	})
	mux.HandleFunc("GET /api/interpret/{query_id}", func(w http.ResponseWriter, r *http.Request) {
		handleInterpret(cfg, deps, w, r)
	})
	mux.HandleFunc("GET /api/download/{query_id}", func(w http.ResponseWriter, r *http.Request) {
		handleDownload(deps, w, r)
	})
	mux.HandleFunc("POST /api/feedback", func(w http.ResponseWriter, r *http.Request) {
		handleFeedback(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func handleHealth(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":      "healthy",
		"service":     cfg.Service.Name,
		"backend_api": "connected",
	}
	status, err := deps.Backends.Default().Health(r.Context())
	if err != nil {
		// The adapter itself is up, so this stays a 200; the body says the
		// backend behind it is not.
		payload["status"] = "unhealthy"
		payload["backend_api"] = "disconnected"
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "backend health probe failed", slog.Any("error", err))
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}
	payload["backend_cache_size"] = status.CacheSize
	writeJSON(w, http.StatusOK, payload)
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// writeBackendError maps a typed upstream failure onto this service's error
// envelope, preserving the upstream status where it is meaningful.
func writeBackendError(ctx context.Context, w http.ResponseWriter, err error) {
	if backend.IsTimeout(err) {
		writeError(ctx, w, http.StatusGatewayTimeout, "BACKEND_TIMEOUT", "backend request timed out", true, nil)
		return
	}
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		status := statusErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeError(ctx, w, status, "BACKEND_ERROR", statusErr.Message, status >= 500, nil)
		return
	}
	writeError(ctx, w, http.StatusBadGateway, "BACKEND_UNREACHABLE", err.Error(), true, nil)
}
