package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"millionaire-bot/internal/game/millionaire"
	"millionaire-bot/internal/pkg/lock"
	"millionaire-bot/internal/service"
)

// AdminHandler handles admin-related commands.
type AdminHandler struct {
	accountService *service.AccountService
	sweeper        *millionaire.Sweeper
	userLock       *lock.UserLock
	lockTimeout    time.Duration
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	accountService *service.AccountService,
	sweeper *millionaire.Sweeper,
	userLock *lock.UserLock,
	lockTimeout time.Duration,
) *AdminHandler {
	return &AdminHandler{
		accountService: accountService,
		sweeper:        sweeper,
		userLock:       userLock,
		lockTimeout:    lockTimeout,
	}
}

// HandleAdminEntries handles the /admin_entries command.
// Format: /admin_entries <user_id> <count>
func (h *AdminHandler) HandleAdminEntries(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	targetID, n, err := parseGrantArgs(c.Args())
	if err != nil {
		return c.Reply(err.Error())
	}

	var total int
	err = h.userLock.WithLockContext(ctx, targetID, h.lockTimeout, func() error {
		if _, _, err := h.accountService.EnsureUser(ctx, targetID, ""); err != nil {
			return err
		}
		total, err = h.accountService.GrantEntries(ctx, targetID, n)
		return err
	})
	if err != nil {
		log.Error().Err(err).Int64("target_id", targetID).Msg("Failed to grant entries")
		if errors.Is(err, lock.ErrLockTimeout) {
			return c.Reply("⏳ That player is busy, try again in a moment")
		}
		return c.Reply("❌ Operation failed")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", targetID).
		Int("entries", n).
		Str("operation", "admin_entries").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf(
		"✅ Done\n\n"+
			"👤 User ID: %d\n"+
			"🎟 Granted: %d\n"+
			"🎟 Entries now: %d",
		targetID, n, total,
	))
}

// HandleAdminSweep handles the /admin_sweep command.
// Runs both maintenance sweeps immediately.
func (h *AdminHandler) HandleAdminSweep(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	zombies, zerr := h.sweeper.SweepZombies(ctx)
	timers, terr := h.sweeper.SweepTimers(ctx)
	if err := errors.Join(zerr, terr); err != nil {
		log.Error().Err(err).Msg("Manual sweep failed")
		return c.Reply("❌ Sweep failed, see logs")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int("zombies", zombies).
		Int("timers", timers).
		Str("operation", "admin_sweep").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf("🧹 Sweep complete\n\nStale games cancelled: %d\nTimers pruned: %d", zombies, timers))
}
