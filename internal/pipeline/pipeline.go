// Package pipeline drives one chat request through the backend call chain
// (generate, execute, optional interpret) and multiplexes progress into an
// ordered event stream.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/querychat/querychat/internal/backend"
	"github.com/querychat/querychat/internal/formatter"
	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/prompt"
	"github.com/querychat/querychat/internal/session"
)

// Request is one inbound chat call.
type Request struct {
	Message               string
	SessionID             string
	DataSource            string
	IncludeInterpretation bool
}

// Gateway is the slice of the backend client the pipeline needs.
type Gateway interface {
	Generate(ctx context.Context, message string) (backend.GenerateResult, error)
	Execute(ctx context.Context, queryID string) (backend.ExecuteResult, error)
	Interpret(ctx context.Context, queryID string) (map[string]any, error)
}

// GatewayFunc resolves a data-source identifier to its gateway. It must
// never return nil; unknown identifiers resolve to the default source.
type GatewayFunc func(dataSource string) Gateway

type Config struct {
	ContextWindow      int
	InitialDisplayRows int
	RowCacheLimit      int
}

// Service runs the chat state machine. One Run per inbound request; the
// session store is the only shared state.
type Service struct {
	Sessions *session.Store
	Resolve  GatewayFunc
	Config   Config
	Logger   *slog.Logger
}

// Run executes the pipeline on its own goroutine and returns the event
// channel. The channel is closed after the terminal event. If ctx is
// cancelled mid-run (client disconnected), the chain is abandoned and no
// further events are attempted.
func (s *Service) Run(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, 8)
	go func() {
		defer close(events)
		start := time.Now()
		observability.CountChatRequest()

		if err := s.run(ctx, req, events); err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.Logger != nil {
				s.Logger.ErrorContext(ctx, "chat pipeline failed", slog.Any("error", err))
			}
			s.emit(ctx, events, Event{Type: EventError, Fields: map[string]any{
				"message": err.Error(),
			}})
		}
		observability.ObservePipelineDuration(time.Since(start))
	}()
	return events
}

func (s *Service) run(ctx context.Context, req Request, events chan<- Event) error {
	sessionID, sess := s.Sessions.ResolveOrCreate(req.SessionID)
	observability.SetActiveSessions(s.Sessions.Len())

	if !s.emit(ctx, events, Event{Type: EventSession, Fields: map[string]any{
		"session_id": sessionID,
	}}) {
		return ctx.Err()
	}

	gateway := s.Resolve(req.DataSource)

	message := req.Message
	if len(sess.History) > 0 {
		message = prompt.Build(sess.History, req.Message, s.Config.ContextWindow)
	}

	generated, err := gateway.Generate(ctx, message)
	if err != nil {
		return fmt.Errorf("generate sql: %w", err)
	}

	switch generated.Outcome {
	case backend.OutcomeGuidance:
		// Valid short-circuit: the question could not be mapped to known
		// schema. No SQL, no data, no history mutation.
		observability.CountGuidanceOutcome()
		if !s.emit(ctx, events, Event{Type: EventGuidance, Fields: map[string]any{
			"message":           generated.Guidance.Message,
			"schema_overview":   generated.Guidance.SchemaOverview,
			"suggested_queries": generated.Guidance.SuggestedQueries,
		}}) {
			return ctx.Err()
		}
		s.emit(ctx, events, Event{Type: EventDone, Fields: map[string]any{}})
		return nil

	case backend.OutcomeGeneral:
		// No query to run; answer, remember the turn, finish.
		if !s.emit(ctx, events, Event{Type: EventGeneralAnswer, Fields: map[string]any{
			"answer": generated.GeneralAnswer,
		}}) {
			return ctx.Err()
		}
		s.Sessions.Append(sessionID, req.Message, nil)
		s.emit(ctx, events, Event{Type: EventDone, Fields: map[string]any{}})
		return nil

	case backend.OutcomeMixed:
		if generated.GeneralAnswer != "" {
			if !s.emit(ctx, events, Event{Type: EventGeneralAnswer, Fields: map[string]any{
				"answer": generated.GeneralAnswer,
			}}) {
				return ctx.Err()
			}
		}
	}

	explanation := fmt.Sprintf("**SQL Query:**\n```sql\n%s\n```\n\n", generated.SQL)
	if !s.emit(ctx, events, Event{Type: EventSQL, Fields: map[string]any{
		"sql":         generated.SQL,
		"query_id":    generated.QueryID,
		"explanation": explanation,
	}}) {
		return ctx.Err()
	}

	executed, err := gateway.Execute(ctx, generated.QueryID)
	if err != nil {
		return fmt.Errorf("execute query %s: %w", generated.QueryID, err)
	}

	displayInfo := formatter.BuildDisplayInfo(len(executed.Rows), executed.TotalCount, s.Config.InitialDisplayRows)
	if !s.emit(ctx, events, Event{Type: EventData, Fields: map[string]any{
		"results":      executed.Rows,
		"display_info": displayInfo,
	}}) {
		return ctx.Err()
	}

	if req.IncludeInterpretation {
		raw, err := gateway.Interpret(ctx, generated.QueryID)
		if err != nil {
			return fmt.Errorf("interpret query %s: %w", generated.QueryID, err)
		}
		payload := formatter.BuildInterpretationPayload(raw, executed.TotalCount, s.Config.RowCacheLimit)
		if _, err := json.Marshal(payload); err != nil {
			// The payload contained something the transport cannot carry;
			// fall back to the analysis text rather than dropping the event.
			if s.Logger != nil {
				s.Logger.ErrorContext(ctx, "interpretation payload not serializable", slog.Any("error", err))
			}
			payload = payload.Reduced()
		}
		if !s.emit(ctx, events, Event{Type: EventInterpretation, Fields: map[string]any{
			"analysis":          payload.Analysis,
			"visualization":     payload.Visualization,
			"schema_overview":   payload.SchemaOverview,
			"suggested_queries": payload.SuggestedQueries,
		}}) {
			return ctx.Err()
		}
	}

	// Always the original message, never the enriched one, so context text
	// does not compound across turns.
	sql := generated.SQL
	s.Sessions.Append(sessionID, req.Message, &sql)

	s.emit(ctx, events, Event{Type: EventDone, Fields: map[string]any{}})
	return nil
}

func (s *Service) emit(ctx context.Context, events chan<- Event, event Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case events <- event:
		observability.CountStreamEvent(string(event.Type))
		return true
	case <-ctx.Done():
		return false
	}
}
