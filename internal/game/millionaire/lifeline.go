package millionaire

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"millionaire-bot/internal/model"
	"millionaire-bot/internal/repository"
)

// UseLifeline applies a lifeline to the current question. Each lifeline can be
// used once per session.
func (e *Engine) UseLifeline(ctx context.Context, sess *model.Session, kind model.Lifeline) error {
	if sess.LifelineUsed(kind) {
		return e.notify(ctx, sess.UserID, textLifelineUsed, ErrLifelineUsed)
	}
	if sess.CurrentQuestionID == nil {
		return e.notify(ctx, sess.UserID, textQuestionPending, ErrQuestionPending)
	}

	switch kind {
	case model.LifelineFiftyFifty:
		return e.fiftyFifty(ctx, sess)
	case model.LifelineSwitch:
		return e.switchQuestion(ctx, sess)
	}
	return fmt.Errorf("unknown lifeline %q", kind)
}

// fiftyFifty resends the current question with the correct option and one
// random wrong option. The countdown keeps its original deadline.
func (e *Engine) fiftyFifty(ctx context.Context, sess *model.Session) error {
	rung := sess.CurrentQuestion
	deadline, late, err := e.expired(ctx, sess.SessionID, rung)
	if err != nil {
		return err
	}
	if late {
		if err := e.disarm(ctx, sess.SessionID, rung); err != nil {
			return err
		}
		return e.resolveTimeout(ctx, sess)
	}

	q, err := e.questions.GetByID(ctx, *sess.CurrentQuestionID)
	if err != nil {
		if errors.Is(err, repository.ErrQuestionNotFound) {
			return e.notify(ctx, sess.UserID, textIntegrity, ErrSessionIntegrity)
		}
		return fmt.Errorf("failed to load question: %w", err)
	}

	flipped, err := e.sessions.MarkLifelineUsed(ctx, sess.SessionID, model.LifelineFiftyFifty)
	if err != nil {
		return err
	}
	if !flipped {
		return e.notify(ctx, sess.UserID, textLifelineUsed, ErrLifelineUsed)
	}
	sess.FiftyFiftyUsed = true
	e.saveShadow(ctx, sess)

	letters := e.remainingLetters(q.Correct)
	text := e.questionText(sess, q, letters, deadline.Sub(e.now()))
	if err := e.sender.SendMessage(ctx, sess.UserID, text); err != nil {
		return fmt.Errorf("failed to send reduced question: %w", err)
	}
	log.Debug().Str("session_id", sess.SessionID).Int("question", rung).Msg("Fifty-fifty used")
	return nil
}

// remainingLetters keeps correct and one uniformly chosen wrong letter, in A-D order.
func (e *Engine) remainingLetters(correct model.Letter) []model.Letter {
	wrong := make([]model.Letter, 0, len(model.Letters)-1)
	for _, l := range model.Letters {
		if l != correct {
			wrong = append(wrong, l)
		}
	}
	kept := []model.Letter{correct, wrong[e.intn(len(wrong))]}
	sort.Slice(kept, func(i, j int) bool { return kept[i] < kept[j] })
	return kept
}

// switchQuestion drops the current question and sends a fresh one for the same
// rung after the pacing delay. The old question stays in the asked log.
func (e *Engine) switchQuestion(ctx context.Context, sess *model.Session) error {
	rung := sess.CurrentQuestion
	deadline, late, err := e.expired(ctx, sess.SessionID, rung)
	if err != nil {
		return err
	}
	if err := e.disarm(ctx, sess.SessionID, rung); err != nil {
		return err
	}
	if late {
		return e.resolveTimeout(ctx, sess)
	}

	flipped, err := e.sessions.MarkLifelineUsed(ctx, sess.SessionID, model.LifelineSwitch)
	if err != nil || !flipped {
		if rerr := e.arm(ctx, sess, rung, deadline); rerr != nil {
			log.Error().Err(rerr).Str("session_id", sess.SessionID).Msg("Failed to rearm countdown after switch was refused")
		}
		if err != nil {
			return err
		}
		return e.notify(ctx, sess.UserID, textLifelineUsed, ErrLifelineUsed)
	}
	sess.SwitchUsed = true
	sess.CurrentQuestionID = nil
	e.saveShadow(ctx, sess)

	if err := e.sender.SendMessage(ctx, sess.UserID, textSwitching); err != nil {
		log.Warn().Err(err).Str("session_id", sess.SessionID).Msg("Failed to send switch notice")
	}
	e.schedulePacing(sess)
	log.Debug().Str("session_id", sess.SessionID).Int("question", rung).Msg("Question switched")
	return nil
}
