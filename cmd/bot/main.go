// Package main is the entry point for the Millionaire quiz bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"millionaire-bot/internal/bot"
	"millionaire-bot/internal/cache"
	"millionaire-bot/internal/config"
	"millionaire-bot/internal/game/millionaire"
	"millionaire-bot/internal/game/prize"
	"millionaire-bot/internal/pkg/db"
	"millionaire-bot/internal/pkg/lock"
	"millionaire-bot/internal/pkg/timer"
	"millionaire-bot/internal/repository"
	"millionaire-bot/internal/server"
	"millionaire-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Msg("Configuration loaded successfully")

	// Cancelled on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := db.Migrate(cfg.Database.DSN()); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize the expiry store
	rdb, err := cache.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer rdb.Close()
	store := cache.New(rdb, cfg.Redis.Prefix)

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	sessionRepo := repository.NewSessionRepository(dbPool.Pool)
	entryRepo := repository.NewEntryRepository(dbPool.Pool)
	payoutRepo := repository.NewPayoutRepository(dbPool.Pool)
	tournamentRepo := repository.NewTournamentRepository(dbPool.Pool)
	questionRepo := repository.NewQuestionRepository(dbPool.Pool)

	// Initialize services
	accountService := service.NewAccountService(userRepo, entryRepo, payoutRepo)
	rankingService := service.NewRankingService(userRepo)

	teleBot, err := bot.NewTeleBot(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	userLock := lock.NewUserLock()
	timers := timer.NewRegistry()
	defer timers.Stop()

	engine := millionaire.New(millionaire.Dependencies{
		Config: millionaire.Config{
			QuestionTimeout: cfg.Game.QuestionTimeout,
			MarkerBuffer:    cfg.Game.MarkerBuffer,
			PacingDelay:     cfg.Game.PacingDelay,
			ReadyWindow:     cfg.Game.ReadyWindow,
			SessionTTL:      cfg.Game.SessionTTL,
		},
		Sessions:    sessionRepo,
		Users:       userRepo,
		Payouts:     payoutRepo,
		Cache:       store,
		Questions:   questionRepo,
		Payments:    entryRepo,
		Tournaments: tournamentRepo,
		Sender:      bot.NewTelegramSender(teleBot),
		Timers:      timers,
		Ladder:      prize.Reference(),
		Locks:       userLock,
	})

	sweeper := millionaire.NewSweeper(sessionRepo, store, timers, millionaire.SweeperConfig{
		ZombieInterval:     cfg.Maintenance.ZombieInterval,
		ZombieCeiling:      cfg.Maintenance.ZombieCeiling,
		TimerSweepInterval: cfg.Maintenance.TimerSweepInterval,
		Grace:              cfg.Game.MarkerBuffer,
	})

	// Re-arm countdowns for games that were running when the process stopped
	recovered, err := engine.Recover(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to recover active sessions")
	}
	log.Info().Int("sessions", recovered).Msg("Active sessions recovered")

	telegramBot := bot.New(teleBot, &bot.Dependencies{
		Config:         cfg,
		Engine:         engine,
		Sweeper:        sweeper,
		AccountService: accountService,
		RankingService: rankingService,
		UserLock:       userLock,
	})

	httpServer := server.New(cfg.HTTP.Addr, map[string]server.Pinger{
		"postgres": server.PingFunc(dbPool.HealthCheck),
		"redis":    store,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		return httpServer.Run(gctx)
	})
	g.Go(func() error {
		go func() {
			<-gctx.Done()
			telegramBot.Stop()
		}()
		telegramBot.Start()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Shutdown with error")
	}
	log.Info().Msg("Bot stopped gracefully")
}
