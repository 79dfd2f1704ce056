package leaderboard

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
)

// PostgresStore persists leaderboard entries.
//
// Expected schema:
//
//	CREATE TABLE leaderboards (
//	    session_id TEXT PRIMARY KEY,
//	    archived   BOOLEAN NOT NULL DEFAULT FALSE
//	);
//	CREATE TABLE leaderboard_entries (
//	    session_id    TEXT NOT NULL REFERENCES leaderboards (session_id),
//	    user_id       TEXT NOT NULL,
//	    username      TEXT NOT NULL,
//	    score         BIGINT NOT NULL,
//	    correct_count INT NOT NULL,
//	    time_spent_ms BIGINT NOT NULL,
//	    update_time   TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (session_id, user_id)
//	);
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) UpsertEntry(ctx context.Context, sessionID string, e domain.LeaderboardEntry) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const ensureStmt = `
INSERT INTO leaderboards (session_id) VALUES ($1)
ON CONFLICT (session_id) DO NOTHING;`

	if _, err = tx.Exec(ctx, ensureStmt, sessionID); err != nil {
		return fmt.Errorf("ensure leaderboard: %w", err)
	}

	var archived bool
	const archivedStmt = `SELECT archived FROM leaderboards WHERE session_id = $1 FOR UPDATE;`
	if err = tx.QueryRow(ctx, archivedStmt, sessionID).Scan(&archived); err != nil {
		return fmt.Errorf("check archived: %w", err)
	}
	if archived {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("leaderboard is archived: session=%s", sessionID))
	}

	const upsertStmt = `
INSERT INTO leaderboard_entries (session_id, user_id, username, score, correct_count, time_spent_ms, update_time)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id, user_id) DO UPDATE SET
    username = EXCLUDED.username,
    score = EXCLUDED.score,
    correct_count = EXCLUDED.correct_count,
    time_spent_ms = EXCLUDED.time_spent_ms,
    update_time = EXCLUDED.update_time;`

	_, err = tx.Exec(ctx, upsertStmt,
		sessionID, e.UserID, e.Username, e.Score, e.CorrectCount, e.TimeSpentMs, e.UpdateTime)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ListEntries(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	const stmt = `
SELECT user_id, username, score, correct_count, time_spent_ms, update_time
FROM leaderboard_entries
WHERE session_id = $1
ORDER BY score DESC, time_spent_ms ASC;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var e domain.LeaderboardEntry
		err := r.Scan(&e.UserID, &e.Username, &e.Score, &e.CorrectCount, &e.TimeSpentMs, &e.UpdateTime)
		return e, err
	})
}

func (s *PostgresStore) Archive(ctx context.Context, sessionID string) error {
	const stmt = `
INSERT INTO leaderboards (session_id, archived) VALUES ($1, TRUE)
ON CONFLICT (session_id) DO UPDATE SET archived = TRUE;`

	_, err := s.db.Exec(ctx, stmt, sessionID)
	return err
}
