// Package audit provides an append-only record of MCP invocations: every
// tool call, resource read, and prompt retrieval, with outcome and latency.
//
// The trail is operator-facing observability, not state the dispatcher
// depends on — tool invocations never read it, and a write failure is
// logged, never surfaced to the MCP client.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes audit events.
type EventType string

const (
	EventToolCall     EventType = "tool.call"
	EventResourceRead EventType = "resource.read"
	EventPromptGet    EventType = "prompt.get"
)

// Event is a single immutable audit record.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"ts"`
	Type       EventType `json:"type"`
	Name       string    `json:"name"` // tool name, resource URI, or prompt name
	Status     string    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Transport  string    `json:"transport,omitempty"` // "stdio" or "http"
}

// QueryOptions filters audit log queries.
type QueryOptions struct {
	Type  EventType
	Since time.Time
	Limit int
}

// Store is the persistence interface for the audit trail.
type Store interface {
	// Append writes an event. Events are immutable once written.
	Append(ctx context.Context, event *Event) error

	// Query retrieves events matching the given filters, newest first.
	Query(ctx context.Context, opts QueryOptions) ([]*Event, error)

	// Close releases the store's resources.
	Close() error
}

func stamp(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}

// ------------------------------------------------------------------
// File-based store (append-only JSONL)
// ------------------------------------------------------------------

// FileStore is an append-only JSON Lines store. The file is never modified,
// only appended to.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-based audit store at the given path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Append writes an event to the audit log.
func (s *FileStore) Append(ctx context.Context, event *Event) error {
	stamp(event)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// Query reads events matching the given filters, newest first.
func (s *FileStore) Query(ctx context.Context, opts QueryOptions) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	var events []*Event
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue // tolerate a torn last line
		}
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		if !opts.Since.IsZero() && e.Timestamp.Before(opts.Since) {
			continue
		}
		events = append(events, &e)
	}

	// Newest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if opts.Limit > 0 && len(events) > opts.Limit {
		events = events[:opts.Limit]
	}
	return events, nil
}

// Close implements Store. A FileStore holds no open handles between calls.
func (s *FileStore) Close() error { return nil }

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
