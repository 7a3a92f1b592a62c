package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Session       SessionConfig
	Backend       BackendConfig
	UI            UIConfig
	Feedback      FeedbackConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address     string
	ReadTimeout time.Duration
	// WriteTimeout stays zero by default: the chat stream and CSV
	// downloads hold the response open far longer than any fixed
	// per-response budget.
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type SessionConfig struct {
	// IdleTimeout is how long a session survives without activity.
	IdleTimeout time.Duration
	// MaxHistory bounds the retained exchanges per session; deployments
	// run anywhere from 1 to 5.
	MaxHistory int
	// ContextWindow is how many of the retained exchanges are rendered
	// into the follow-up prompt. Must be <= MaxHistory.
	ContextWindow int
}

type BackendConfig struct {
	// DefaultURL is the endpoint of the default data source's backend.
	DefaultURL string
	// Sources lists additional named data sources as "name=url,name=url".
	// Unknown source names fall back to DefaultURL.
	Sources string
	// HealthTimeout covers liveness probes, QueryTimeout covers
	// generate/execute/interpret/schema, DownloadTimeout covers bulk CSV
	// retrieval, which is not bounded by the row cache.
	HealthTimeout   time.Duration
	QueryTimeout    time.Duration
	DownloadTimeout time.Duration
	// RowCacheLimit mirrors the backend's per-query row cache ceiling;
	// deployments have shipped 30, 50 and 100.
	RowCacheLimit int
}

type UIConfig struct {
	// InitialDisplayRows is how many rows the frontend renders before
	// scrolling.
	InitialDisplayRows int
}

type FeedbackConfig struct {
	Path string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("QUERYCHAT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid QUERYCHAT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "QUERYCHAT_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYCHAT_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYCHAT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYCHAT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYCHAT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYCHAT_SESSION_IDLE_TIMEOUT", &cfg.Session.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYCHAT_SESSION_MAX_HISTORY", &cfg.Session.MaxHistory); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYCHAT_SESSION_CONTEXT_WINDOW", &cfg.Session.ContextWindow); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYCHAT_BACKEND_URL", &cfg.Backend.DefaultURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYCHAT_BACKEND_SOURCES", &cfg.Backend.Sources); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYCHAT_BACKEND_HEALTH_TIMEOUT", &cfg.Backend.HealthTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYCHAT_BACKEND_QUERY_TIMEOUT", &cfg.Backend.QueryTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYCHAT_BACKEND_DOWNLOAD_TIMEOUT", &cfg.Backend.DownloadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYCHAT_BACKEND_ROW_CACHE_LIMIT", &cfg.Backend.RowCacheLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYCHAT_UI_INITIAL_ROWS", &cfg.UI.InitialDisplayRows); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYCHAT_FEEDBACK_PATH", &cfg.Feedback.Path); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYCHAT_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "QUERYCHAT_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Backend.DefaultURL == "" {
		return Config{}, fmt.Errorf("backend url is required")
	}
	if cfg.Session.MaxHistory < 1 {
		return Config{}, fmt.Errorf("session max history must be at least 1")
	}
	if cfg.Session.ContextWindow < 1 {
		return Config{}, fmt.Errorf("session context window must be at least 1")
	}
	if cfg.Session.ContextWindow > cfg.Session.MaxHistory {
		return Config{}, fmt.Errorf("session context window (%d) exceeds max history (%d)",
			cfg.Session.ContextWindow, cfg.Session.MaxHistory)
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "querychat-api"},
		HTTP: HTTPConfig{
			Address:      ":8001",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		Session: SessionConfig{
			IdleTimeout:   time.Hour,
			MaxHistory:    5,
			ContextWindow: 3,
		},
		Backend: BackendConfig{
			DefaultURL:      "http://localhost:8000",
			Sources:         "",
			HealthTimeout:   5 * time.Second,
			QueryTimeout:    30 * time.Second,
			DownloadTimeout: 300 * time.Second,
			RowCacheLimit:   30,
		},
		UI: UIConfig{
			InitialDisplayRows: 30,
		},
		Feedback: FeedbackConfig{
			Path: "feedback.jsonl",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18001"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
