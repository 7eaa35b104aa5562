// Package audit records every broker operation and consent event as an
// append-only trail. Events carry item titles and error kinds, never field
// values and never the service-account token.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome labels for Event.Outcome.
const (
	OutcomeSuccess     = "success"
	OutcomeNotFound    = "not_found"
	OutcomeAuthFailed  = "auth_failed"
	OutcomeCommand     = "command_error"
	OutcomeInvalidLink = "invalid_link"
)

// Event is one audited broker operation.
type Event struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Op      string    `json:"op"`
	Outcome string    `json:"outcome"`
	Vault   string    `json:"vault,omitempty"`
	Item    string    `json:"item,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// Recorder is the sink the broker writes events to.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Logger writes audit events as append-only JSONL, one JSON object per
// line. Thread-safe: multiple goroutines can record concurrently.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// NewLogger opens (or creates) the audit log in append-only mode with
// 0600 permissions.
func NewLogger(path string, logger *slog.Logger) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	return &Logger{file: f, logger: logger}, nil
}

// Record assigns the event an ID and timestamp if missing, serializes it,
// and appends it to the log. Marshal happens outside the lock; only the
// file write is serialized.
func (l *Logger) Record(ctx context.Context, event Event) error {
	fill(&event)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	_, writeErr := l.file.Write(data)
	l.mu.Unlock()

	if writeErr != nil {
		return fmt.Errorf("writing audit event: %w", writeErr)
	}

	l.logger.InfoContext(ctx, "audit event recorded",
		slog.String("op", event.Op),
		slog.String("outcome", event.Outcome),
		slog.String("event_id", event.ID),
	)
	return nil
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Multi fans an event out to every recorder, returning the first error
// after all have been attempted.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, event Event) error {
	fill(&event)
	var firstErr error
	for _, r := range m {
		if err := r.Record(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// fill assigns ID and Time when unset so all recorders see the same values.
func fill(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
}

var (
	_ Recorder = (*Logger)(nil)
	_ Recorder = (Multi)(nil)
)
