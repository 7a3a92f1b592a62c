// Package formatter shapes raw backend payloads into display-ready
// structures. Everything here is a pure function over decoded JSON.
package formatter

import (
	"fmt"
	"strings"
)

// DisplayInfo drives the frontend's progressive row rendering.
// TotalInDataset is the backend's reported total when known, or the
// open-ended marker "1000+" when the dataset was too large to count.
type DisplayInfo struct {
	TotalRows      int  `json:"total_rows"`
	InitialDisplay int  `json:"initial_display"`
	HasScrollData  bool `json:"has_scroll_data"`
	TotalInDataset any  `json:"total_in_dataset"`
}

// InterpretationPayload is the display-ready analysis built per request.
// It is never stored; it exists only for the duration of the response.
type InterpretationPayload struct {
	Analysis         string         `json:"analysis"`
	Visualization    map[string]any `json:"visualization"`
	SchemaOverview   map[string]any `json:"schema_overview"`
	SuggestedQueries []string       `json:"suggested_queries"`
}

// Reduced strips the payload down to its analysis text. Used when the full
// payload turns out to be unserializable for transport.
func (p InterpretationPayload) Reduced() InterpretationPayload {
	return InterpretationPayload{
		Analysis:         p.Analysis,
		SuggestedQueries: []string{},
	}
}

const unknownTotalMarker = "1000+"

// BuildDisplayInfo computes row-display metadata. has_scroll_data is true
// iff more rows were returned than the initial display hint.
func BuildDisplayInfo(rowCount int, totalCount *int, initialDisplay int) DisplayInfo {
	info := DisplayInfo{
		TotalRows:      rowCount,
		InitialDisplay: initialDisplay,
		HasScrollData:  rowCount > initialDisplay,
	}
	if totalCount != nil {
		info.TotalInDataset = *totalCount
	} else {
		info.TotalInDataset = unknownTotalMarker
	}
	return info
}

// AnalysisText renders the interpretation object's summary, key findings
// and recommendations as display text. A completeness disclaimer is
// appended iff the dataset exceeds the backend's row cache ceiling, or the
// total is unknown (treated as very large).
func AnalysisText(raw map[string]any, totalCount *int, cacheLimit int) string {
	var parts []string
	interp := asObject(raw["interpretation"])

	if summary := asString(interp["summary"]); summary != "" {
		parts = append(parts, fmt.Sprintf("**Summary:**\n\n%s\n\n", summary))
	}

	if findings := asStringList(interp["key_findings"]); len(findings) > 0 {
		parts = append(parts, "**Key Findings:**\n\n")
		for i, finding := range findings {
			parts = append(parts, fmt.Sprintf("%d. %s\n", i+1, finding))
		}
		parts = append(parts, "\n")
	}

	if recommendations := asStringList(interp["recommendations"]); len(recommendations) > 0 {
		parts = append(parts, "**Recommendations:**\n\n")
		for _, recommendation := range recommendations {
			parts = append(parts, fmt.Sprintf("- %s\n", recommendation))
		}
		parts = append(parts, "\n")
	}

	switch {
	case totalCount != nil && *totalCount > cacheLimit:
		parts = append(parts, fmt.Sprintf(
			"**Analysis Note:**\n\nInsights based on first %d rows of %d rows. Download full dataset for complete analysis.\n\n",
			cacheLimit, *totalCount))
	case totalCount == nil:
		parts = append(parts, fmt.Sprintf(
			"**Analysis Note:**\n\nInsights based on first %d rows of more than 1000 rows. Download full dataset for complete analysis.\n\n",
			cacheLimit))
	}

	return strings.Join(parts, "")
}

// ExtractFields pulls the optional visualization, schema overview and
// suggested queries out of the interpretation response. Top-level fields
// win; the nested "interpretation" object is the fallback. Wrong-shaped
// values coerce to empty rather than failing.
func ExtractFields(raw map[string]any) (visualization, schemaOverview map[string]any, suggestedQueries []string) {
	visualization = asObject(raw["visualization"])
	schemaOverview = asObject(raw["schema_overview"])
	suggestedQueries = asStringList(raw["suggested_queries"])

	if schemaOverview == nil && len(suggestedQueries) == 0 {
		nested := asObject(raw["interpretation"])
		if visualization == nil {
			visualization = asObject(nested["visualization"])
		}
		schemaOverview = asObject(nested["schema_overview"])
		suggestedQueries = asStringList(nested["suggested_queries"])
	}

	if suggestedQueries == nil {
		suggestedQueries = []string{}
	}
	return visualization, schemaOverview, suggestedQueries
}

// BuildInterpretationPayload combines the analysis narrative with the
// extracted optional fields.
func BuildInterpretationPayload(raw map[string]any, totalCount *int, cacheLimit int) InterpretationPayload {
	visualization, schemaOverview, suggestedQueries := ExtractFields(raw)
	return InterpretationPayload{
		Analysis:         AnalysisText(raw, totalCount, cacheLimit),
		Visualization:    visualization,
		SchemaOverview:   schemaOverview,
		SuggestedQueries: suggestedQueries,
	}
}

func asObject(value any) map[string]any {
	object, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	return object
}

func asString(value any) string {
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return text
}

func asStringList(value any) []string {
	switch list := value.(type) {
	case []string:
		return list
	case []any:
		items := make([]string, 0, len(list))
		for _, entry := range list {
			if text, ok := entry.(string); ok {
				items = append(items, text)
			}
		}
		return items
	default:
		return nil
	}
}
