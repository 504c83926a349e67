// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"millionaire-bot/internal/game/millionaire"
	"millionaire-bot/internal/model"
	"millionaire-bot/internal/pkg/lock"
	"millionaire-bot/internal/service"
)

const (
	textPrivateOnly = "🔒 The quiz is played in a private chat. Message me directly to play."
	textBusy        = "⏳ Still working on your last message, please try again in a moment."
)

// MillionaireHandler routes game commands and answers to the engine.
type MillionaireHandler struct {
	engine         *millionaire.Engine
	accountService *service.AccountService
	userLock       *lock.UserLock
	lockTimeout    time.Duration
}

// NewMillionaireHandler creates a new MillionaireHandler.
func NewMillionaireHandler(
	engine *millionaire.Engine,
	accountService *service.AccountService,
	userLock *lock.UserLock,
	lockTimeout time.Duration,
) *MillionaireHandler {
	return &MillionaireHandler{
		engine:         engine,
		accountService: accountService,
		userLock:       userLock,
		lockTimeout:    lockTimeout,
	}
}

// HandlePlay handles /play: a paid regular game.
func (h *MillionaireHandler) HandlePlay(c tele.Context) error {
	return h.start(c, model.KindRegular, nil)
}

// HandlePractice handles /practice: a free game from the practice pool.
func (h *MillionaireHandler) HandlePractice(c tele.Context) error {
	return h.start(c, model.KindPractice, nil)
}

// HandleTournament handles /tournament <id>.
func (h *MillionaireHandler) HandleTournament(c tele.Context) error {
	id, err := parseTournamentID(c.Args())
	if err != nil {
		return c.Reply(err.Error())
	}
	return h.start(c, model.KindTournament, &id)
}

func (h *MillionaireHandler) start(c tele.Context, kind model.GameKind, tournamentID *int64) error {
	return h.run(c, "start", func(ctx context.Context, userID int64) error {
		_, err := h.engine.Start(ctx, millionaire.StartRequest{
			UserID:       userID,
			Kind:         kind,
			TournamentID: tournamentID,
			Channel:      model.ChannelTelegram,
		})
		return err
	})
}

// HandleFiftyFifty handles /5050.
func (h *MillionaireHandler) HandleFiftyFifty(c tele.Context) error {
	return h.lifeline(c, model.LifelineFiftyFifty)
}

// HandleSwitch handles /switch.
func (h *MillionaireHandler) HandleSwitch(c tele.Context) error {
	return h.lifeline(c, model.LifelineSwitch)
}

func (h *MillionaireHandler) lifeline(c tele.Context, kind model.Lifeline) error {
	return h.run(c, "lifeline", func(ctx context.Context, userID int64) error {
		return h.engine.LifelineActive(ctx, userID, kind)
	})
}

// HandleReset handles /reset: abandons the active game without a result.
func (h *MillionaireHandler) HandleReset(c tele.Context) error {
	return h.run(c, "reset", func(ctx context.Context, userID int64) error {
		return h.engine.Cancel(ctx, userID)
	})
}

// HandleText handles plain messages: START, answer letters and keyboard lifelines.
// Other text is ignored so ordinary chatter is not treated as an answer.
func (h *MillionaireHandler) HandleText(c tele.Context) error {
	if c.Chat() == nil || c.Chat().Type != tele.ChatPrivate {
		return nil
	}
	action, letter := ClassifyText(c.Text())
	switch action {
	case ActionReady:
		return h.run(c, "ready", func(ctx context.Context, userID int64) error {
			return h.engine.Ready(ctx, userID)
		})
	case ActionAnswer:
		return h.run(c, "answer", func(ctx context.Context, userID int64) error {
			return h.engine.AnswerActive(ctx, userID, letter)
		})
	case ActionFiftyFifty:
		return h.lifeline(c, model.LifelineFiftyFifty)
	case ActionSwitch:
		return h.lifeline(c, model.LifelineSwitch)
	}
	return nil
}

// run executes fn for the sender under their lock after making sure the
// account exists. Errors the engine has not already explained are reported.
func (h *MillionaireHandler) run(c tele.Context, op string, fn func(ctx context.Context, userID int64) error) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if c.Chat() == nil || c.Chat().Type != tele.ChatPrivate {
		return c.Reply(textPrivateOnly)
	}

	ctx := context.Background()
	err := h.userLock.WithLockContext(ctx, sender.ID, h.lockTimeout, func() error {
		if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, displayName(sender)); err != nil {
			return err
		}
		return fn(ctx, sender.ID)
	})
	if err == nil || millionaire.Notified(err) {
		return nil
	}

	if errors.Is(err, lock.ErrLockTimeout) {
		log.Warn().Int64("user_id", sender.ID).Str("op", op).Msg("User lock busy")
		return c.Send(textBusy)
	}
	if errors.Is(err, millionaire.ErrNotActive) {
		log.Debug().Err(err).Int64("user_id", sender.ID).Str("op", op).Msg("Game ended concurrently")
		return nil
	}

	log.Error().Err(err).Int64("user_id", sender.ID).Str("op", op).Msg("Game operation failed")
	return c.Send(millionaire.FailureText(err))
}

// displayName prefers the @username and falls back to the first name.
func displayName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}
