// Package quiz reads quiz definitions. Authoring them is handled elsewhere;
// the session engine only ever needs a consistent read of one quiz.
package quiz

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

// PostgresRepository loads quiz definitions.
//
// Expected schema:
//
//	CREATE TABLE quizzes (
//	    quiz_id TEXT PRIMARY KEY,
//	    title   TEXT NOT NULL
//	);
//
//	CREATE TABLE questions (
//	    question_id    TEXT PRIMARY KEY,
//	    quiz_id        TEXT NOT NULL REFERENCES quizzes (quiz_id),
//	    position       INT NOT NULL,
//	    question_text  TEXT NOT NULL,
//	    options        JSONB NOT NULL,
//	    correct_answer TEXT NOT NULL,
//	    time_limit_ms  BIGINT NOT NULL,
//	    points         BIGINT NOT NULL,
//	    UNIQUE (quiz_id, position)
//	);
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	const quizStmt = `
SELECT quiz_id, title FROM quizzes WHERE quiz_id = $1;`

	var q domain.Quiz
	err := r.db.QueryRow(ctx, quizStmt, quizID).Scan(&q.QuizID, &q.Title)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: %s", quizID))
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("find quiz: %w", err)
	}

	const questionStmt = `
SELECT question_id, question_text, options, correct_answer, time_limit_ms, points
FROM questions
WHERE quiz_id = $1
ORDER BY position;`

	rows, err := r.db.Query(ctx, questionStmt, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("list questions: %w", err)
	}

	q.Questions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Question, error) {
		var (
			dq          domain.Question
			timeLimitMs int64
		)
		err := row.Scan(&dq.QuestionID, &dq.QuestionText, &dq.Options, &dq.CorrectAnswer, &timeLimitMs, &dq.Points)
		dq.TimeLimit = time.Duration(timeLimitMs) * time.Millisecond
		return dq, err
	})
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("collect questions: %w", err)
	}

	return q, nil
}
