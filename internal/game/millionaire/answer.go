package millionaire

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"millionaire-bot/internal/model"
	"millionaire-bot/internal/repository"
)

// Answer resolves a lettered answer to the session's current question.
// An answer that arrives after the deadline is resolved as a timeout.
func (e *Engine) Answer(ctx context.Context, sess *model.Session, letter model.Letter) error {
	rung := sess.CurrentQuestion
	logger := log.With().Str("session_id", sess.SessionID).Int("question", rung).Logger()

	if sess.CurrentQuestionID == nil {
		if e.timers.Has(pacingKey(sess.SessionID)) {
			return e.notify(ctx, sess.UserID, textQuestionPending, ErrQuestionPending)
		}
		logger.Warn().Msg("Answer received with no current question")
		return e.notify(ctx, sess.UserID, textIntegrity, ErrSessionIntegrity)
	}

	_, late, err := e.expired(ctx, sess.SessionID, rung)
	if err != nil {
		return err
	}
	if err := e.disarm(ctx, sess.SessionID, rung); err != nil {
		return err
	}
	if late {
		logger.Debug().Msg("Answer arrived after the deadline")
		return e.resolveTimeout(ctx, sess)
	}

	q, err := e.questions.GetByID(ctx, *sess.CurrentQuestionID)
	if err != nil {
		if errors.Is(err, repository.ErrQuestionNotFound) {
			logger.Error().Int64("question_id", *sess.CurrentQuestionID).Msg("Current question no longer exists")
			return e.notify(ctx, sess.UserID, textIntegrity, ErrSessionIntegrity)
		}
		return fmt.Errorf("failed to load question: %w", err)
	}

	correct := letter == q.Correct
	if err := e.questions.UpdateStats(ctx, q.ID, correct); err != nil {
		logger.Warn().Err(err).Msg("Failed to update question stats")
	}

	if !correct {
		logger.Info().Str("answer", letter.String()).Str("correct", q.Correct.String()).Msg("Wrong answer")
		return e.CompleteGame(ctx, sess, Outcome{
			Kind:          OutcomeWrong,
			Score:         e.ladder.GuaranteedBelow(rung),
			CorrectAnswer: fmt.Sprintf("%s: %s", q.Correct, q.CorrectText()),
		})
	}

	won := e.ladder.Prize(rung)
	advanced, err := e.sessions.Advance(ctx, sess.SessionID, rung, won)
	if err != nil {
		return err
	}
	if !advanced {
		return ErrNotActive
	}
	sess.CurrentQuestion = rung + 1
	sess.Score = won
	sess.CurrentQuestionID = nil

	if rung >= e.ladder.Len() {
		// The row rests one past the last rung.
		logger.Info().Int64("score", won).Msg("Grand prize won")
		return e.CompleteGame(ctx, sess, Outcome{Kind: OutcomeGrandPrize, Score: won})
	}
	e.saveShadow(ctx, sess)

	if err := e.sender.SendMessage(ctx, sess.UserID, e.correctText(rung, won)); err != nil {
		logger.Warn().Err(err).Msg("Failed to send correct-answer message")
	}
	e.schedulePacing(sess)
	logger.Debug().Int64("score", won).Msg("Correct answer")
	return nil
}

// resolveTimeout ends the session at its guaranteed amount.
func (e *Engine) resolveTimeout(ctx context.Context, sess *model.Session) error {
	timeoutsFired.Inc()
	return e.CompleteGame(ctx, sess, Outcome{
		Kind:  OutcomeTimeout,
		Score: e.ladder.GuaranteedBelow(sess.CurrentQuestion),
	})
}
