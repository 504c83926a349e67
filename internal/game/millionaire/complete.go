package millionaire

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"millionaire-bot/internal/model"
)

// OutcomeKind is how a session ended.
type OutcomeKind string

// Session outcomes.
const (
	OutcomeGrandPrize OutcomeKind = "grand_prize"
	OutcomeWrong      OutcomeKind = "wrong"
	OutcomeTimeout    OutcomeKind = "timeout"
	OutcomeCancelled  OutcomeKind = "cancelled"
)

// Outcome is the final result handed to CompleteGame.
type Outcome struct {
	Kind  OutcomeKind
	Score int64
	// CorrectAnswer is shown after a wrong answer, e.g. "B: Paris".
	CorrectAnswer string
}

// WonGrandPrize reports whether every question was answered correctly.
func (o Outcome) WonGrandPrize() bool {
	return o.Kind == OutcomeGrandPrize
}

// CompleteGame moves the session to its terminal status and, only for the
// caller that made that transition, writes aggregates, records the payout,
// clears cached state and sends the closing message. Later calls for the same
// session do nothing.
func (e *Engine) CompleteGame(ctx context.Context, sess *model.Session, out Outcome) error {
	logger := log.With().
		Str("session_id", sess.SessionID).
		Int64("user_id", sess.UserID).
		Str("outcome", string(out.Kind)).
		Logger()

	e.timers.CancelPrefix(sess.SessionID)

	status := model.StatusCompleted
	if out.Kind == OutcomeCancelled {
		status = model.StatusCancelled
	}
	won, err := e.sessions.Finish(ctx, sess.SessionID, status, out.Score)
	if err != nil {
		return err
	}
	if !won {
		logger.Debug().Msg("Session already finished")
		return nil
	}
	sess.Status = status
	sess.Score = out.Score

	var errs []error
	if status == model.StatusCompleted {
		reached := min(sess.CurrentQuestion, e.ladder.Len())
		if _, err := e.users.RecordGame(ctx, sess.UserID, out.Score, reached); err != nil {
			errs = append(errs, fmt.Errorf("failed to record game: %w", err))
		}
		if sess.Kind != model.KindPractice && out.Score > 0 {
			if _, err := e.payouts.CreatePending(ctx, sess.UserID, sess.SessionID, out.Score); err != nil {
				errs = append(errs, fmt.Errorf("failed to record payout: %w", err))
			}
		}
		if sess.Kind == model.KindTournament && sess.TournamentID != nil {
			if err := e.tournaments.RecordAttempt(ctx, sess.UserID, *sess.TournamentID, out.Score, reached); err != nil {
				logger.Warn().Err(err).Msg("Failed to record tournament attempt")
			}
		}
	}

	if n, err := e.cache.PurgeSession(ctx, sess.SessionID); err != nil {
		logger.Warn().Err(err).Msg("Failed to purge session cache")
	} else {
		logger.Debug().Int("keys", n).Msg("Session cache purged")
	}
	if err := e.cache.ClearReady(ctx, sess.UserID); err != nil {
		logger.Warn().Err(err).Msg("Failed to clear ready flag")
	}

	if err := e.sender.SendMessage(ctx, sess.UserID, e.terminalText(sess, out)); err != nil {
		errs = append(errs, fmt.Errorf("failed to send result: %w", err))
	}

	gamesFinished.WithLabelValues(string(out.Kind)).Inc()
	logger.Info().Int64("score", out.Score).Msg("Game finished")
	return errors.Join(errs...)
}
