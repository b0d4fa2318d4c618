package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"sharedauth/internal/audit"
	"sharedauth/internal/auth/models"
)

// Store implements audit.Sink on the audit_events table.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	user_id     TEXT,
	email       TEXT,
	app_type    TEXT,
	session_id  TEXT,
	ip          TEXT,
	user_agent  TEXT,
	request_id  TEXT,
	error       TEXT,
	metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_user_idx ON audit_events (user_id, occurred_at DESC);
`

// EnsureSchema creates the table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Append inserts an event. Re-delivered events with a known id are ignored.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	if event.Metadata == nil {
		metadata = []byte("{}")
	}

	query := `
		INSERT INTO audit_events (
			id, type, user_id, email, app_type, session_id,
			ip, user_agent, request_id, error, metadata, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		nullable(event.UserID),
		nullable(event.Email),
		nullable(string(event.AppType)),
		nullable(event.SessionID),
		nullable(event.IP),
		nullable(event.UserAgent),
		nullable(event.RequestID),
		nullable(event.Error),
		metadata,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns the most recent events for a user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	query := `
		SELECT id, type, user_id, email, app_type, session_id,
			   ip, user_agent, request_id, error, metadata, occurred_at
		FROM audit_events
		WHERE user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, userID, int32(limit)) //nolint:gosec // clamped above
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e                                                       audit.Event
			typ                                                     string
			user, email, app, session, ip, ua, requestID, errorText sql.NullString
			metadata                                                []byte
		)
		if err := rows.Scan(&e.ID, &typ, &user, &email, &app, &session,
			&ip, &ua, &requestID, &errorText, &metadata, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type = audit.EventType(typ)
		e.UserID = user.String
		e.Email = email.String
		e.AppType = models.AppType(app.String)
		e.SessionID = session.String
		e.IP = ip.String
		e.UserAgent = ua.String
		e.RequestID = requestID.String
		e.Error = errorText.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
			if len(e.Metadata) == 0 {
				e.Metadata = nil
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
