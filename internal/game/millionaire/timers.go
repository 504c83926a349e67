package millionaire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"millionaire-bot/internal/model"
	"millionaire-bot/internal/pkg/timer"
	"millionaire-bot/internal/repository"
)

// pacingQuestion is the key slot used for deferred next-question sends.
const pacingQuestion = 0

func questionKey(sessionID string, question int) timer.Key {
	return timer.Key{SessionID: sessionID, Question: question}
}

func pacingKey(sessionID string) timer.Key {
	return timer.Key{SessionID: sessionID, Question: pacingQuestion}
}

// SendQuestion draws an unasked question for the session's current rung,
// arms the countdown and sends it. If arming or sending fails the question is
// withdrawn so the session never carries a current question without a marker.
func (e *Engine) SendQuestion(ctx context.Context, sess *model.Session) error {
	rung := sess.CurrentQuestion
	e.timers.Cancel(questionKey(sess.SessionID, rung))

	asked, err := e.cache.Asked(ctx, sess.SessionID)
	if err != nil {
		return err
	}
	if asked == nil {
		asked = []int64{}
	}

	q, err := e.questions.GetByDifficulty(ctx, rung, asked, sess.Kind.Pool(), sess.TournamentID)
	if err != nil {
		return fmt.Errorf("failed to fetch question: %w", err)
	}
	if q == nil {
		log.Error().Str("session_id", sess.SessionID).Int("question", rung).Int("asked", len(asked)).Msg("Question pool exhausted")
		return fmt.Errorf("%w: rung %d, pool %s", ErrContentExhausted, rung, sess.Kind.Pool())
	}

	if err := e.cache.AddAsked(ctx, sess.SessionID, q.ID, e.cfg.SessionTTL); err != nil {
		return err
	}
	if err := e.sessions.SetCurrentQuestionID(ctx, sess.SessionID, &q.ID); err != nil {
		if errors.Is(err, repository.ErrSessionNotActive) {
			return ErrNotActive
		}
		return err
	}
	id := q.ID
	sess.CurrentQuestionID = &id
	e.saveShadow(ctx, sess)

	if err := e.arm(ctx, sess, rung, e.now().Add(e.cfg.QuestionTimeout)); err != nil {
		return errors.Join(err, e.withdraw(ctx, sess))
	}

	text := e.questionText(sess, q, model.Letters[:], e.cfg.QuestionTimeout)
	if err := e.sender.SendMessage(ctx, sess.UserID, text); err != nil {
		err = fmt.Errorf("failed to send question: %w", err)
		return errors.Join(err, e.disarm(ctx, sess.SessionID, rung), e.withdraw(ctx, sess))
	}
	log.Debug().Str("session_id", sess.SessionID).Int("question", rung).Int64("question_id", q.ID).Msg("Question sent")
	return nil
}

// withdraw clears the session's current question after a failed arm or send.
func (e *Engine) withdraw(ctx context.Context, sess *model.Session) error {
	if err := e.sessions.SetCurrentQuestionID(ctx, sess.SessionID, nil); err != nil {
		if errors.Is(err, repository.ErrSessionNotActive) {
			return nil
		}
		return fmt.Errorf("failed to withdraw question: %w", err)
	}
	sess.CurrentQuestionID = nil
	e.saveShadow(ctx, sess)
	return nil
}

// arm writes the durable marker and schedules the local callback for the same deadline.
func (e *Engine) arm(ctx context.Context, sess *model.Session, rung int, deadline time.Time) error {
	remaining := deadline.Sub(e.now())
	if remaining < 0 {
		remaining = 0
	}
	if err := e.cache.ArmMarker(ctx, sess.SessionID, rung, deadline, remaining+e.cfg.MarkerBuffer); err != nil {
		return fmt.Errorf("failed to arm timeout marker: %w", err)
	}
	e.scheduleTimeout(sess.SessionID, sess.UserID, rung, remaining)
	return nil
}

func (e *Engine) scheduleTimeout(sessionID string, userID int64, rung int, d time.Duration) {
	e.timers.Schedule(questionKey(sessionID, rung), d, func() {
		e.withUser(userID, func(ctx context.Context) error {
			return e.HandleTimeout(ctx, sessionID, rung)
		})
	})
}

// disarm cancels the local callback and clears the marker for one question.
func (e *Engine) disarm(ctx context.Context, sessionID string, rung int) error {
	e.timers.Cancel(questionKey(sessionID, rung))
	if err := e.cache.ClearMarker(ctx, sessionID, rung); err != nil {
		return fmt.Errorf("failed to clear timeout marker: %w", err)
	}
	return nil
}

// expired reports whether the question's countdown is over according to the
// durable marker. A question with no marker has no countdown left running.
func (e *Engine) expired(ctx context.Context, sessionID string, rung int) (time.Time, bool, error) {
	deadline, ok, err := e.cache.Marker(ctx, sessionID, rung)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ok {
		return time.Time{}, true, nil
	}
	return deadline, !e.now().Before(deadline), nil
}

// HandleTimeout resolves a question's countdown. It is a no-op if the marker is
// gone or the session has moved past the question.
func (e *Engine) HandleTimeout(ctx context.Context, sessionID string, rung int) error {
	deadline, ok, err := e.cache.Marker(ctx, sessionID, rung)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	sess, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load session: %w", err)
	}
	if !sess.IsActive() || sess.CurrentQuestion != rung {
		return nil
	}

	if remaining := deadline.Sub(e.now()); remaining > 0 {
		// Fired early relative to the durable deadline; wait out the rest.
		e.scheduleTimeout(sessionID, sess.UserID, rung, remaining)
		return nil
	}

	if err := e.cache.ClearMarker(ctx, sessionID, rung); err != nil {
		return fmt.Errorf("failed to clear timeout marker: %w", err)
	}
	return e.resolveTimeout(ctx, sess)
}

// schedulePacing runs the next-question continuation after the pacing delay.
// CompleteGame and Cancel drop it through prefix cancellation.
func (e *Engine) schedulePacing(sess *model.Session) {
	sessionID, userID, rung := sess.SessionID, sess.UserID, sess.CurrentQuestion
	e.timers.Schedule(pacingKey(sessionID), e.cfg.PacingDelay, func() {
		e.withUser(userID, func(ctx context.Context) error {
			return e.continueAt(ctx, sessionID, userID, rung)
		})
	})
}

// continueAt sends the question for rung if the session is still the user's
// active game and still waiting for exactly that question.
func (e *Engine) continueAt(ctx context.Context, sessionID string, userID int64, rung int) error {
	sess, err := e.sessions.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load active session: %w", err)
	}
	if sess.SessionID != sessionID || sess.CurrentQuestion != rung || sess.CurrentQuestionID != nil {
		return nil
	}
	return e.SendQuestion(ctx, sess)
}

// Recover rebuilds local timer state after a restart. Live markers get a local
// handle for their remaining time. Expired markers and questions whose marker
// has already lapsed out of the cache resolve as timeouts. Sessions that were
// between questions get their continuation back. Returns how many sessions
// were rearmed, resolved or resumed.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	active, err := e.sessions.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions: %w", err)
	}

	n := 0
	for _, sess := range active {
		logger := log.With().Str("session_id", sess.SessionID).Int("question", sess.CurrentQuestion).Logger()

		if sess.CurrentQuestionID == nil {
			// Awaiting START, or between questions when the process stopped.
			if sess.CurrentQuestion > 1 || sess.SwitchUsed {
				e.schedulePacing(sess)
				n++
			}
			continue
		}

		deadline, ok, err := e.cache.Marker(ctx, sess.SessionID, sess.CurrentQuestion)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to read timeout marker during recovery")
			continue
		}
		if !ok {
			// The marker outlives its deadline by the buffer, so a missing one
			// means the countdown ran out while the process was down.
			e.withUser(sess.UserID, func(ctx context.Context) error {
				return e.resolveTimeout(ctx, sess)
			})
			logger.Info().Msg("Lapsed timeout resolved after restart")
			n++
			continue
		}

		remaining := deadline.Sub(e.now())
		if remaining < 0 {
			remaining = 0
		}
		e.scheduleTimeout(sess.SessionID, sess.UserID, sess.CurrentQuestion, remaining)
		logger.Info().Dur("remaining", remaining).Msg("Timeout rearmed after restart")
		n++
	}
	return n, nil
}

func (e *Engine) saveShadow(ctx context.Context, sess *model.Session) {
	if err := e.cache.SaveShadow(ctx, sess, e.cfg.SessionTTL); err != nil {
		log.Warn().Err(err).Str("session_id", sess.SessionID).Msg("Failed to cache session shadow")
	}
}
