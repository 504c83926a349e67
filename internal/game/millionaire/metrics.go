package millionaire

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gamesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "millionaire",
		Name:      "games_started_total",
		Help:      "Games started, by kind.",
	}, []string{"kind"})

	gamesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "millionaire",
		Name:      "games_finished_total",
		Help:      "Games that reached a terminal status, by outcome.",
	}, []string{"outcome"})

	timeoutsFired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "millionaire",
		Name:      "question_timeouts_total",
		Help:      "Questions resolved as timed out.",
	})

	timersPruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "millionaire",
		Name:      "timer_handles_pruned_total",
		Help:      "In-process timer handles discarded by the timer sweep.",
	})

	zombiesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "millionaire",
		Name:      "zombie_sessions_cancelled_total",
		Help:      "Abandoned sessions cancelled by the zombie sweep.",
	})
)
