// Package millionaire implements the trivia session engine: session start,
// question delivery, answers, lifelines, per-question timeouts and the
// exactly-once completion of every game.
package millionaire

import (
	"context"
	"time"

	"millionaire-bot/internal/model"
)

// SessionStore is the durable store of session rows.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) (*model.Session, error)
	Discard(ctx context.Context, sessionID string) error
	GetByID(ctx context.Context, sessionID string) (*model.Session, error)
	GetActiveByUser(ctx context.Context, userID int64) (*model.Session, error)
	ListActive(ctx context.Context) ([]*model.Session, error)
	MarkEntryConsumed(ctx context.Context, sessionID string) error
	SetCurrentQuestionID(ctx context.Context, sessionID string, questionID *int64) error
	Advance(ctx context.Context, sessionID string, from int, score int64) (bool, error)
	MarkLifelineUsed(ctx context.Context, sessionID string, lifeline model.Lifeline) (bool, error)
	// Finish reports true only to the caller that moved the session out of active.
	Finish(ctx context.Context, sessionID string, status model.SessionStatus, score int64) (bool, error)
	CancelStale(ctx context.Context, olderThan time.Time) ([]*model.Session, error)
}

// UserStore holds the per-user aggregates written at completion.
type UserStore interface {
	RecordGame(ctx context.Context, userID int64, score int64, reached int) (*model.User, error)
	TouchStreak(ctx context.Context, userID int64, day time.Time) (int, error)
}

// PayoutLedger records prizes owed to players.
type PayoutLedger interface {
	CreatePending(ctx context.Context, userID int64, sessionID string, amount int64) (bool, error)
}

// ExpiryStore is the TTL-backed cache holding timeout markers and per-session scratch data.
type ExpiryStore interface {
	ArmMarker(ctx context.Context, sessionID string, question int, deadline time.Time, ttl time.Duration) error
	Marker(ctx context.Context, sessionID string, question int) (time.Time, bool, error)
	ClearMarker(ctx context.Context, sessionID string, question int) error
	AddAsked(ctx context.Context, sessionID string, questionID int64, ttl time.Duration) error
	Asked(ctx context.Context, sessionID string) ([]int64, error)
	SaveShadow(ctx context.Context, s *model.Session, ttl time.Duration) error
	SetReady(ctx context.Context, userID int64, sessionID string, ttl time.Duration) error
	TakeReady(ctx context.Context, userID int64) (string, bool, error)
	ClearReady(ctx context.Context, userID int64) error
	PurgeSession(ctx context.Context, sessionID string) (int, error)
}

// QuestionProvider serves question content.
type QuestionProvider interface {
	// GetByDifficulty returns nil, nil when no question matches.
	GetByDifficulty(ctx context.Context, number int, exclude []int64, pool model.QuestionPool, tournamentID *int64) (*model.Question, error)
	GetByID(ctx context.Context, id int64) (*model.Question, error)
	UpdateStats(ctx context.Context, id int64, correct bool) error
}

// PaymentProvider accounts for paid game entries.
type PaymentProvider interface {
	HasEntriesRemaining(ctx context.Context, userID int64) (bool, error)
	DeductEntry(ctx context.Context, userID int64) (int, error)
}

// TournamentProvider handles tournament eligibility and bookkeeping.
type TournamentProvider interface {
	Status(ctx context.Context, userID, tournamentID int64) (*model.TournamentStatus, error)
	DeductToken(ctx context.Context, userID, tournamentID int64) (int, error)
	RecordAttempt(ctx context.Context, userID, tournamentID int64, score int64, question int) error
}

// MessageSender delivers text to a chat user.
type MessageSender interface {
	SendMessage(ctx context.Context, recipient int64, text string) error
}
