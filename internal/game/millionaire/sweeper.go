package millionaire

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"millionaire-bot/internal/model"
	"millionaire-bot/internal/pkg/timer"
)

// SweeperConfig holds the maintenance intervals.
type SweeperConfig struct {
	ZombieInterval     time.Duration
	ZombieCeiling      time.Duration
	TimerSweepInterval time.Duration
	// Grace is how long past its marker deadline a handle may linger before it is pruned.
	Grace time.Duration
}

// DefaultSweeperConfig returns the reference maintenance intervals.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		ZombieInterval:     10 * time.Minute,
		ZombieCeiling:      time.Hour,
		TimerSweepInterval: 5 * time.Minute,
		Grace:              3 * time.Second,
	}
}

// SweepStore is the subset of the session store the sweeper needs.
type SweepStore interface {
	CancelStale(ctx context.Context, olderThan time.Time) ([]*model.Session, error)
}

// Sweeper runs the periodic zombie and timer-registry sweeps.
type Sweeper struct {
	sessions SweepStore
	cache    ExpiryStore
	timers   *timer.Registry
	cfg      SweeperConfig
	now      func() time.Time
}

// NewSweeper creates a Sweeper sharing the engine's timer registry.
func NewSweeper(sessions SweepStore, cache ExpiryStore, timers *timer.Registry, cfg SweeperConfig) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		cache:    cache,
		timers:   timers,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run starts both sweeps and blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.loop(ctx, "zombie", s.cfg.ZombieInterval, func(ctx context.Context) error {
			_, err := s.SweepZombies(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		s.loop(ctx, "timer", s.cfg.TimerSweepInterval, func(ctx context.Context) error {
			_, err := s.SweepTimers(ctx)
			return err
		})
		return nil
	})
	return g.Wait()
}

func (s *Sweeper) loop(ctx context.Context, name string, every time.Duration, sweep func(context.Context) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	log.Info().Str("sweep", name).Dur("interval", every).Msg("Sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("sweep", name).Msg("Sweeper stopped")
			return
		case <-ticker.C:
			if err := sweep(ctx); err != nil {
				log.Error().Err(err).Str("sweep", name).Msg("Sweep failed")
			}
		}
	}
}

// SweepZombies cancels active sessions older than the ceiling and removes
// their cached state and local timers. Returns how many were cancelled.
func (s *Sweeper) SweepZombies(ctx context.Context) (int, error) {
	stale, err := s.sessions.CancelStale(ctx, s.now().Add(-s.cfg.ZombieCeiling))
	if err != nil {
		return 0, fmt.Errorf("failed to cancel stale sessions: %w", err)
	}

	for _, sess := range stale {
		logger := log.With().Str("session_id", sess.SessionID).Int64("user_id", sess.UserID).Logger()
		s.timers.CancelPrefix(sess.SessionID)
		if _, err := s.cache.PurgeSession(ctx, sess.SessionID); err != nil {
			logger.Warn().Err(err).Msg("Failed to purge zombie session cache")
		}
		if err := s.cache.ClearReady(ctx, sess.UserID); err != nil {
			logger.Warn().Err(err).Msg("Failed to clear zombie ready flag")
		}
		logger.Info().Time("started_at", sess.StartedAt).Msg("Zombie session cancelled")
	}
	zombiesCancelled.Add(float64(len(stale)))
	return len(stale), nil
}

// SweepTimers drops countdown handles whose durable marker is gone or long past
// its deadline. Pacing handles have no marker and are left alone, as are
// handles whose marker cannot be read this pass. Returns how many handles were
// pruned.
func (s *Sweeper) SweepTimers(ctx context.Context) (int, error) {
	pruned := 0
	for _, key := range s.timers.Keys() {
		if key.Question == pacingQuestion {
			continue
		}
		deadline, ok, err := s.cache.Marker(ctx, key.SessionID, key.Question)
		if err != nil {
			log.Warn().Err(err).Stringer("key", key).Msg("Failed to read marker, handle kept")
			continue
		}
		if ok && !s.now().After(deadline.Add(s.cfg.Grace)) {
			continue
		}
		if s.timers.Cancel(key) {
			pruned++
			log.Debug().Stringer("key", key).Bool("marker", ok).Msg("Stale timer handle pruned")
		}
	}
	timersPruned.Add(float64(pruned))
	return pruned, nil
}
