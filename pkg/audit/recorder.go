package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/landscape-community/landscape-mcp/pkg/config"
	"github.com/landscape-community/landscape-mcp/pkg/logger"
)

// NewStore builds the configured audit store, or nil when auditing is
// disabled.
func NewStore(cfg config.Audit) (Store, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "file":
		return NewFileStore(cfg.Path)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "postgres":
		return NewPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}

// Recorder writes events to a Store, swallowing (and logging) failures so
// auditing never breaks an invocation. A nil Recorder is a no-op.
type Recorder struct {
	store     Store
	transport string
}

// NewRecorder wraps a store for the given transport label. Returns nil when
// store is nil, so call sites can record unconditionally.
func NewRecorder(store Store, transport string) *Recorder {
	if store == nil {
		return nil
	}
	return &Recorder{store: store, transport: transport}
}

// Record appends one event.
func (r *Recorder) Record(typ EventType, name, status, errorKind string, d time.Duration) {
	if r == nil {
		return
	}
	event := &Event{
		Type:       typ,
		Name:       name,
		Status:     status,
		ErrorKind:  errorKind,
		DurationMS: d.Milliseconds(),
		Transport:  r.transport,
	}
	if err := r.store.Append(context.Background(), event); err != nil {
		logger.ErrorCF("audit", "Failed to append audit event", map[string]any{
			"error": err.Error(),
		})
	}
}
