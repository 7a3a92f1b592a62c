package backend

import "fmt"

// Outcome classifies a generation result. Callers must handle every case;
// guidance in particular is not an error.
type Outcome string

const (
	// OutcomeSQL is the default shape: SQL was produced and can be
	// executed under the returned query id.
	OutcomeSQL Outcome = "sql"
	// OutcomeGeneral means no SQL was produced; only a natural-language
	// answer is returned.
	OutcomeGeneral Outcome = "general"
	// OutcomeMixed carries both a natural-language answer and SQL.
	OutcomeMixed Outcome = "mixed"
	// OutcomeGuidance means the request could not be mapped to known
	// schema; the result carries actionable suggestions instead of SQL.
	OutcomeGuidance Outcome = "guidance"
)

// GenerateResult is the tagged outcome of a generation call. QueryID, SQL
// and GeneralAnswer are populated according to Outcome; Guidance is non-nil
// only for OutcomeGuidance.
type GenerateResult struct {
	Outcome       Outcome
	QueryID       string
	SQL           string
	GeneralAnswer string
	Guidance      *Guidance
}

// Guidance is the distinguished "cannot map to schema" generation outcome.
type Guidance struct {
	Message          string
	SchemaOverview   map[string]any
	SuggestedQueries []string
}

// ExecuteResult holds the cached rows for a query. TotalCount is nil when
// the dataset was too large to count cheaply.
type ExecuteResult struct {
	Rows       []map[string]any
	TotalCount *int
}

// SchemaOverview is the table/column metadata surface of a data source.
type SchemaOverview struct {
	SchemaID         *string          `json:"schema_id"`
	Tables           []map[string]any `json:"tables"`
	SuggestedQueries []string         `json:"suggested_queries"`
}

// HealthStatus reports reachability of a data source's backend.
type HealthStatus struct {
	Status    string
	CacheSize int
}

// StatusError preserves a non-success upstream response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}
