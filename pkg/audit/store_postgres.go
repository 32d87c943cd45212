package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore persists audit events in PostgreSQL, for deployments where
// several gateway instances share one audit trail.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens (and migrates) the audit schema at the given DSN,
// e.g. "host=db port=5432 user=mcp dbname=audit sslmode=require".
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			error_kind TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			transport TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events(ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, event *Event) error {
	stamp(event)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, ts, type, name, status, error_kind, duration_ms, transport)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.Timestamp.UTC(), string(event.Type),
		event.Name, event.Status, event.ErrorKind, event.DurationMS, event.Transport,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query implements Store.
func (s *PostgresStore) Query(ctx context.Context, opts QueryOptions) ([]*Event, error) {
	q := `SELECT id, ts, type, name, status, error_kind, duration_ms, transport
	      FROM audit_events WHERE true`
	var args []any
	argIdx := 1

	if opts.Type != "" {
		q += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, string(opts.Type))
		argIdx++
	}
	if !opts.Since.IsZero() {
		q += fmt.Sprintf(" AND ts >= $%d", argIdx)
		args = append(args, opts.Since.UTC())
		argIdx++
	}

	q += " ORDER BY ts DESC"

	if opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &e.Timestamp, &typ, &e.Name, &e.Status, &e.ErrorKind, &e.DurationMS, &e.Transport); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type = EventType(typ)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Close implements Store.
func (s *PostgresStore) Close() error { return s.db.Close() }
