// Package feedback appends user-submitted feedback records to a local
// JSONL file, one object per line.
package feedback

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/querychat/querychat/internal/observability"
)

// Record is one feedback submission. Optional fields stay out of the line
// entirely when unset.
type Record struct {
	Type         string   `json:"type"`
	QueryID      *string  `json:"query_id,omitempty"`
	UserQuestion *string  `json:"user_question,omitempty"`
	SQLQuery     *string  `json:"sql_query,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Timestamp    string   `json:"timestamp"`
}

// Log serializes appends to a single JSONL file. The file is created on
// first write and opened per append so external log rotation stays safe.
type Log struct {
	mu     sync.Mutex
	path   string
	now    func() time.Time
	logger *slog.Logger
}

func NewLog(path string, logger *slog.Logger) *Log {
	return &Log{
		path:   path,
		now:    time.Now,
		logger: logger,
	}
}

// Append writes the record as one line, verbatim. The client's timestamp
// is preserved; server time is stamped only when the record carries none.
// A record whose type is empty is rejected before touching the file.
func (l *Log) Append(record Record) error {
	if record.Type == "" {
		return fmt.Errorf("feedback record requires a type")
	}
	if record.Timestamp == "" {
		record.Timestamp = l.now().UTC().Format(time.RFC3339)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode feedback record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open feedback log %s: %w", l.path, err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append feedback record: %w", err)
	}

	observability.CountFeedbackRecord(record.Type)
	if l.logger != nil {
		l.logger.Info("feedback recorded",
			slog.String("type", record.Type),
			slog.String("path", l.path),
		)
	}
	return nil
}
