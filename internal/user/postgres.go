// Package user looks up participant identities.
package user

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
)

// PostgresRepository reads user records.
//
// Expected schema:
//
//	CREATE TABLE users (
//	    user_id  TEXT PRIMARY KEY,
//	    username TEXT NOT NULL UNIQUE,
//	    email    TEXT NOT NULL UNIQUE
//	);
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	return r.findBy(ctx, "user_id", userID)
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.findBy(ctx, "username", username)
}

func (r *PostgresRepository) findBy(ctx context.Context, column, value string) (domain.User, error) {
	stmt := fmt.Sprintf(`SELECT user_id, username, email FROM users WHERE %s = $1;`, column)

	var u domain.User
	err := r.db.QueryRow(ctx, stmt, value).Scan(&u.UserID, &u.Username, &u.Email)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: %s", value))
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}
