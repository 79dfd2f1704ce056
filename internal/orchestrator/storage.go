package orchestrator

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
)

// Every durable read and write goes through the resilience wrapper guarding
// the session database. Domain answers (a missing record, a missing quiz)
// pass through untouched; only transport failures are retried and, once
// retries are exhausted, surfaced as Unavailable.

func (o *Orchestrator) findSession(ctx context.Context, sessionID string) (domain.Session, bool, error) {
	var (
		ss    domain.Session
		found bool
	)
	err := o.dbRes.Do(ctx, func(ctx context.Context) error {
		s, err := o.store.Find(ctx, sessionID)
		// An absent record is an answer, not a store failure.
		if errors.Is(err, errors.CodeNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		ss, found = s, true
		return nil
	})
	if err != nil {
		return domain.Session{}, false, unavailable(err)
	}
	return ss, found, nil
}

func (o *Orchestrator) createSession(ctx context.Context, ss domain.Session) error {
	err := o.dbRes.Do(ctx, func(ctx context.Context) error {
		return o.store.Create(ctx, ss)
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (o *Orchestrator) persistStatus(ctx context.Context, sessionID string, status domain.SessionStatus, endTime *time.Time) error {
	err := o.dbRes.Do(ctx, func(ctx context.Context) error {
		return o.store.UpdateStatus(ctx, sessionID, status, endTime)
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (o *Orchestrator) getQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		quiz    domain.Quiz
		missing error
	)
	err := o.dbRes.Do(ctx, func(ctx context.Context) error {
		q, err := o.quizzes.GetQuiz(ctx, quizID)
		if errors.Is(err, errors.CodeNotFound) {
			missing = err
			return nil
		}
		if err != nil {
			return err
		}
		quiz = q
		return nil
	})
	if err != nil {
		return domain.Quiz{}, unavailable(err)
	}
	if missing != nil {
		return domain.Quiz{}, missing
	}
	return quiz, nil
}

func (o *Orchestrator) findUser(ctx context.Context, userID string) (domain.User, error) {
	var (
		u       domain.User
		missing error
	)
	err := o.dbRes.Do(ctx, func(ctx context.Context) error {
		found, err := o.users.FindByID(ctx, userID)
		if errors.Is(err, errors.CodeNotFound) {
			missing = err
			return nil
		}
		if err != nil {
			return err
		}
		u = found
		return nil
	})
	if err != nil {
		return domain.User{}, unavailable(err)
	}
	if missing != nil {
		return domain.User{}, missing
	}
	return u, nil
}

// unavailable classifies a storage failure, preserving domain errors the
// store itself raised.
func unavailable(err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e
	}
	return errors.New(errors.CodeUnavailable, errors.WithCause(err))
}
