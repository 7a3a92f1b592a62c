// Package prompt renders conversation history into an enriched generation
// request. It is pure text construction: whether the context actually
// applies to the new question is left to the SQL generator, which avoids
// false negatives from local heuristics.
package prompt

import (
	"fmt"
	"strings"

	"github.com/querychat/querychat/internal/session"
)

const contextRules = `
CONTEXT RULES FOR FOLLOW-UP QUESTIONS:

When the user's question builds on previous queries, use the conversation history to:

1. Resolve references to entities, tables, or columns mentioned previously
   - "the pool", "those servers", "their names" should reference entities from prior queries

2. Preserve the user's intent when modifying queries
   - "also show X" or "as well" -> add columns/joins to previous query while preserving filters
   - "remove X" or "don't show Y" -> exclude specified columns from previous SELECT
   - "sort by X instead" -> keep same data but change ORDER BY clause

3. Maintain consistency with previous query patterns
   - If previous query returned detail rows, continue returning details unless user requests aggregation
   - If previous query used specific filters (WHERE) or limits, preserve them unless explicitly changed
   - If previous query joined certain tables, reuse those relationships when relevant

Generate SQL that naturally continues the conversation based on the context above.`

// Build returns the message enriched with up to window recent exchanges.
// With no history it returns the message unchanged. Deterministic for a
// given history.
func Build(history []session.Exchange, message string, window int) string {
	if len(history) == 0 {
		return message
	}
	if window < 1 {
		window = 1
	}

	recent := history
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}

	parts := []string{"CONVERSATION HISTORY - Use this to understand follow-up questions:\n"}
	for i, exchange := range recent {
		sqlText := "(none)"
		if exchange.SQL != nil {
			sqlText = *exchange.SQL
		}
		parts = append(parts, fmt.Sprintf("Exchange %d:\n  User asked: %s\n  SQL query: %s\n",
			i+1, exchange.UserMessage, sqlText))
	}
	parts = append(parts, fmt.Sprintf("USER'S NEW QUESTION: %s", message))
	parts = append(parts, contextRules)

	return strings.Join(parts, "\n")
}
