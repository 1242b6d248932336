package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the minimal database surface the store needs. Interfaces are
// defined by the consumer; *pgxpool.Pool satisfies it in production.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store manages session persistence in the tenant_sessions table.
// Safe for concurrent use.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a session store.
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Get retrieves a session. Returns ErrNotFound when none exists.
func (s *Store) Get(ctx context.Context, tenantID int64, sessionID string) (*Session, error) {
	var raw []byte
	var lastActivity time.Time
	err := s.db.QueryRow(ctx, `
		SELECT conversation_history, last_activity
		FROM tenant_sessions
		WHERE tenant_id = $1 AND session_id = $2`,
		tenantID, sessionID).Scan(&raw, &lastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s for tenant %d: %w", sessionID, tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var history []Turn
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &history); err != nil {
			return nil, fmt.Errorf("decoding conversation history: %w", err)
		}
	}

	return &Session{
		TenantID:     tenantID,
		SessionID:    sessionID,
		History:      history,
		LastActivity: lastActivity,
	}, nil
}

// AppendTurn records one exchange at the end of the session's history,
// creating the session if needed and bumping last_activity.
func (s *Store) AppendTurn(ctx context.Context, tenantID int64, sessionID, userMessage, botResponse string) error {
	var history []Turn

	existing, err := s.Get(ctx, tenantID, sessionID)
	switch {
	case err == nil:
		history = existing.History
	case errors.Is(err, ErrNotFound):
		// New session starts with an empty history.
	default:
		return err
	}

	history = append(history, Turn{
		Timestamp:   time.Now().UTC(),
		UserMessage: userMessage,
		BotResponse: botResponse,
	})

	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding conversation history: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO tenant_sessions (tenant_id, session_id, conversation_history, last_activity)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, session_id) DO UPDATE SET
			conversation_history = EXCLUDED.conversation_history,
			last_activity = now()`,
		tenantID, sessionID, raw)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	s.logger.Debug("appended conversation turn",
		"tenant_id", tenantID,
		"session_id", sessionID,
		"turns", len(history),
	)
	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, tenantID int64, sessionID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM tenant_sessions
		WHERE tenant_id = $1 AND session_id = $2`,
		tenantID, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteByTenant removes all sessions belonging to a tenant.
func (s *Store) DeleteByTenant(ctx context.Context, tenantID int64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM tenant_sessions WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("deleting tenant sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
