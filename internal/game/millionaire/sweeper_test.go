package millionaire

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"millionaire-bot/internal/model"
	"millionaire-bot/internal/pkg/timer"
)

func (h *harness) sweeper() *Sweeper {
	sw := NewSweeper(h.sessions, h.store, h.timers, DefaultSweeperConfig())
	sw.now = h.clock.Now
	return sw
}

func TestSweepZombies_CancelsOnlyStaleSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stale := h.play(t, alice, model.KindRegular)
	fresh := h.play(t, bob, model.KindRegular)
	h.sessions.backdate(stale.SessionID, 2*time.Hour)

	n, err := h.sweeper().SweepZombies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.StatusCancelled, h.sessions.get(t, stale.SessionID).Status)
	assert.Equal(t, model.StatusActive, h.sessions.get(t, fresh.SessionID).Status)

	assert.False(t, h.timers.Has(questionKey(stale.SessionID, 1)))
	assert.True(t, h.timers.Has(questionKey(fresh.SessionID, 1)))

	var staleKeys, freshKeys int
	for _, k := range h.mr.Keys() {
		switch {
		case strings.Contains(k, stale.SessionID):
			staleKeys++
		case strings.Contains(k, fresh.SessionID):
			freshKeys++
		}
	}
	assert.Zero(t, staleKeys, "stale session cache must be purged")
	assert.NotZero(t, freshKeys)

	assert.Empty(t, h.users.recorded(alice), "a swept game is not counted")

	n, err = h.sweeper().SweepZombies(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "the sweep is idempotent")
}

func TestSweepZombies_ClearsReadyFlag(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.engine.Start(ctx, StartRequest{UserID: alice, Kind: model.KindPractice})
	require.NoError(t, err)
	h.sessions.backdate(sess.SessionID, 2*time.Hour)

	_, err = h.sweeper().SweepZombies(ctx)
	require.NoError(t, err)

	_, ok, err := h.store.TakeReady(ctx, alice)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepTimers_PrunesOrphanedHandles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	live := h.play(t, alice, model.KindPractice)
	paced := h.play(t, bob, model.KindPractice)
	require.NoError(t, h.answer(t, bob, correctLetter))

	// A handle whose marker was removed out of band.
	orphan := timer.Key{SessionID: "gone", Question: 4}
	h.timers.Schedule(orphan, time.Hour, func() {})

	pruned, err := h.sweeper().SweepTimers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.False(t, h.timers.Has(orphan))
	assert.True(t, h.timers.Has(questionKey(live.SessionID, 1)), "live countdowns are kept")
	assert.True(t, h.timers.Has(pacingKey(paced.SessionID)), "pacing continuations have no marker")
}

func TestSweepTimers_PrunesLongExpiredMarker(t *testing.T) {
	h := newHarness(t)
	live := h.play(t, alice, model.KindPractice)

	h.clock.Advance(15*time.Second + DefaultSweeperConfig().Grace)
	pruned, err := h.sweeper().SweepTimers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pruned, "a handle within the grace period is kept")

	h.clock.Advance(time.Second)
	pruned, err = h.sweeper().SweepTimers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.False(t, h.timers.Has(questionKey(live.SessionID, 1)))
}

func TestSweepTimers_ReadErrorSkipsOnlyThatHandle(t *testing.T) {
	h := newHarness(t)
	unreadable := timer.Key{SessionID: "unreadable", Question: 2}
	h.timers.Schedule(unreadable, time.Hour, func() {})
	orphans := []timer.Key{
		{SessionID: "gone-a", Question: 3},
		{SessionID: "gone-b", Question: 9},
		{SessionID: "gone-c", Question: 14},
	}
	for _, k := range orphans {
		h.timers.Schedule(k, time.Hour, func() {})
	}

	store := &flakyStore{ExpiryStore: h.store, failMarkerFor: unreadable.SessionID}
	sw := NewSweeper(h.sessions, store, h.timers, DefaultSweeperConfig())
	sw.now = h.clock.Now

	pruned, err := sw.SweepTimers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(orphans), pruned)
	for _, k := range orphans {
		assert.False(t, h.timers.Has(k), "orphan %s", k)
	}
	assert.True(t, h.timers.Has(unreadable), "handle with an unreadable marker is kept for the next pass")
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	sw := NewSweeper(h.sessions, h.store, h.timers, SweeperConfig{
		ZombieInterval:     10 * time.Millisecond,
		ZombieCeiling:      time.Hour,
		TimerSweepInterval: 10 * time.Millisecond,
		Grace:              time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
