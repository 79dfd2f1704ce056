package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
)

// Store is the durable session record: the recovery source of truth when a
// process restart orphans in-memory state.
type Store interface {
	Create(ctx context.Context, ss domain.Session) error
	Find(ctx context.Context, sessionID string) (domain.Session, error)
	UpdateStatus(ctx context.Context, sessionID string, status domain.SessionStatus, endTime *time.Time) error
}

// PostgresStore persists sessions.
//
// Expected schema:
//
//	CREATE TABLE sessions (
//	    session_id TEXT PRIMARY KEY,
//	    quiz_id    TEXT NOT NULL,
//	    host_id    TEXT NOT NULL,
//	    status     TEXT NOT NULL,
//	    settings   JSONB NOT NULL DEFAULT '{}',
//	    start_time TIMESTAMPTZ,
//	    end_time   TIMESTAMPTZ
//	);
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, ss domain.Session) error {
	const stmt = `
INSERT INTO sessions (session_id, quiz_id, host_id, status, settings, start_time)
VALUES ($1, $2, $3, $4, $5, $6);`

	_, err := s.db.Exec(ctx, stmt, ss.SessionID, ss.QuizID, ss.HostID, ss.Status, ss.Settings, ss.StartTime)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, sessionID string) (domain.Session, error) {
	const stmt = `
SELECT session_id, quiz_id, host_id, status, settings, start_time, end_time
FROM sessions
WHERE session_id = $1;`

	var ss domain.Session
	err := s.db.QueryRow(ctx, stmt, sessionID).
		Scan(&ss.SessionID, &ss.QuizID, &ss.HostID, &ss.Status, &ss.Settings, &ss.StartTime, &ss.EndTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("find session: %w", err)
	}
	return ss, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, sessionID string, status domain.SessionStatus, endTime *time.Time) error {
	const stmt = `
UPDATE sessions SET status = $2, end_time = $3 WHERE session_id = $1;`

	tag, err := s.db.Exec(ctx, stmt, sessionID, status, endTime)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}
	return nil
}
