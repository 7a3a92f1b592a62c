package pipeline

// EventType tags one entry in the progressive chat stream. The client
// treats the sequence as append-only and terminal on done or error.
type EventType string

const (
	// EventSession is always first: it binds the stream to a resumable
	// session identifier before any backend latency is incurred.
	EventSession EventType = "session"
	// EventGeneralAnswer carries a natural-language answer for general
	// or mixed intent.
	EventGeneralAnswer EventType = "general_answer"
	// EventSQL carries the generated SQL and its restatement.
	EventSQL EventType = "sql"
	// EventData carries result rows plus display metadata.
	EventData EventType = "data"
	// EventInterpretation carries the display-ready analysis payload.
	EventInterpretation EventType = "interpretation"
	// EventGuidance is the non-error "cannot map to schema" outcome.
	EventGuidance EventType = "guidance"
	// EventError terminates the stream on failure; done is not emitted.
	EventError EventType = "error"
	// EventDone terminates every non-error stream exactly once.
	EventDone EventType = "done"
)

// Event is one stream entry. Fields are merged flat into the transport
// frame next to the type tag.
type Event struct {
	Type   EventType
	Fields map[string]any
}
