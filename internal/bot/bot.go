// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"millionaire-bot/internal/config"
	"millionaire-bot/internal/game/millionaire"
	"millionaire-bot/internal/handler"
	"millionaire-bot/internal/pkg/lock"
	"millionaire-bot/internal/service"
)

const defaultPollTimeout = 10 * time.Second

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot    *tele.Bot
	cfg    *config.Config
	access *PrivateAccess

	// Handlers
	accountHandler     *handler.AccountHandler
	adminHandler       *handler.AdminHandler
	rankingHandler     *handler.RankingHandler
	millionaireHandler *handler.MillionaireHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config         *config.Config
	Engine         *millionaire.Engine
	Sweeper        *millionaire.Sweeper
	AccountService *service.AccountService
	RankingService *service.RankingService
	UserLock       *lock.UserLock
}

// NewTeleBot creates the underlying telebot client. It is built before the
// engine so the engine can send through it.
func NewTeleBot(cfg *config.Config) (*tele.Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	timeout := cfg.Bot.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	teleBot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Unhandled bot error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return teleBot, nil
}

// New wires handlers and middleware onto teleBot.
func New(teleBot *tele.Bot, deps *Dependencies) *Bot {
	lockTimeout := deps.Config.Game.LockTimeout

	b := &Bot{
		bot:    teleBot,
		cfg:    deps.Config,
		access: NewPrivateAccess(),
	}

	b.accountHandler = handler.NewAccountHandler(deps.AccountService)
	b.adminHandler = handler.NewAdminHandler(deps.AccountService, deps.Sweeper, deps.UserLock, lockTimeout)
	b.rankingHandler = handler.NewRankingHandler(deps.RankingService)
	b.millionaireHandler = handler.NewMillionaireHandler(deps.Engine, deps.AccountService, deps.UserLock, lockTimeout)

	b.registerMiddleware()
	b.registerHandlers()

	return b
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg, b.access))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and text handlers.
func (b *Bot) registerHandlers() {
	// Account handlers
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/help", b.accountHandler.HandleStart)
	b.bot.Handle("/my", b.accountHandler.HandleMy)

	// Ranking handler
	b.bot.Handle("/top", b.rankingHandler.HandleTop)

	// Game handlers
	b.bot.Handle("/play", b.millionaireHandler.HandlePlay)
	b.bot.Handle("/practice", b.millionaireHandler.HandlePractice)
	b.bot.Handle("/tournament", b.millionaireHandler.HandleTournament)
	b.bot.Handle("/5050", b.millionaireHandler.HandleFiftyFifty)
	b.bot.Handle("/switch", b.millionaireHandler.HandleSwitch)
	b.bot.Handle("/reset", b.millionaireHandler.HandleReset)
	b.bot.Handle(tele.OnText, b.millionaireHandler.HandleText)

	// Admin handlers (with admin middleware)
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/admin_entries", b.adminHandler.HandleAdminEntries)
	adminGroup.Handle("/admin_sweep", b.adminHandler.HandleAdminSweep)
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
