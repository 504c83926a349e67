// Package model defines the data models for the millionaire trivia bot.
package model

import (
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of a game session.
type SessionStatus string

// Session statuses. Completed and cancelled are terminal.
const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// GameKind classifies a session.
type GameKind string

const (
	KindPractice   GameKind = "practice"   // Free, never counts towards streaks or payouts
	KindRegular    GameKind = "regular"    // Paid with one game entry
	KindTournament GameKind = "tournament" // Scoped to a tournament, optionally token-gated
)

// Valid reports whether k is a known game kind.
func (k GameKind) Valid() bool {
	switch k {
	case KindPractice, KindRegular, KindTournament:
		return true
	}
	return false
}

// Pool returns the question pool a game of this kind draws from.
func (k GameKind) Pool() QuestionPool {
	if k == KindPractice {
		return PoolPractice
	}
	return PoolClassic
}

// QuestionPool groups questions by the game modes that may serve them.
type QuestionPool string

const (
	PoolPractice QuestionPool = "practice"
	PoolClassic  QuestionPool = "classic"
)

// Channel identifies the chat platform a session was started from.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
)

// Lifeline identifies one of the single-use aids.
type Lifeline string

const (
	LifelineFiftyFifty Lifeline = "fifty_fifty" // Eliminate two wrong options
	LifelineSwitch     Lifeline = "switch"      // Replace the question at the same rung
)

// Session is one game attempt.
type Session struct {
	SessionID         string        `db:"session_id" json:"session_id"`
	UserID            int64         `db:"user_id" json:"user_id"`
	CurrentQuestion   int           `db:"current_question" json:"current_question"`
	Score             int64         `db:"score" json:"score"`
	CurrentQuestionID *int64        `db:"current_question_id" json:"current_question_id,omitempty"`
	FiftyFiftyUsed    bool          `db:"fifty_fifty_used" json:"fifty_fifty_used"`
	SwitchUsed        bool          `db:"switch_used" json:"switch_used"`
	Kind              GameKind      `db:"game_kind" json:"game_kind"`
	TournamentID      *int64        `db:"tournament_id" json:"tournament_id,omitempty"`
	EntryConsumed     bool          `db:"entry_consumed" json:"entry_consumed"`
	Channel           Channel       `db:"channel" json:"channel"`
	Status            SessionStatus `db:"status" json:"status"`
	StartedAt         time.Time     `db:"started_at" json:"started_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
	CompletedAt       *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

// IsActive reports whether the session can still be played.
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}

// LifelineUsed reports whether the given lifeline was already spent.
func (s *Session) LifelineUsed(l Lifeline) bool {
	switch l {
	case LifelineFiftyFifty:
		return s.FiftyFiftyUsed
	case LifelineSwitch:
		return s.SwitchUsed
	}
	return false
}

// User holds the per-user aggregate counters.
type User struct {
	TelegramID      int64      `db:"telegram_id"`
	Username        string     `db:"username"`
	GamesPlayed     int        `db:"games_played"`
	TotalWinnings   int64      `db:"total_winnings"`
	HighestQuestion int        `db:"highest_question"`
	StreakDays      int        `db:"streak_days"`
	LastPlayedOn    *time.Time `db:"last_played_on"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// Letter is a validated answer option.
type Letter int

const (
	LetterA Letter = iota
	LetterB
	LetterC
	LetterD
)

// Letters lists every option in display order.
var Letters = [4]Letter{LetterA, LetterB, LetterC, LetterD}

// String returns the single upper-case letter.
func (l Letter) String() string {
	return string(rune('A' + int(l)))
}

// ParseLetter parses a single letter answer, case-insensitively.
func ParseLetter(s string) (Letter, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 1 || s[0] < 'A' || s[0] > 'D' {
		return 0, false
	}
	return Letter(s[0] - 'A'), true
}

// Question is a single multiple-choice question.
type Question struct {
	ID             int64        `db:"id"`
	QuestionNumber int          `db:"question_number"`
	Pool           QuestionPool `db:"game_mode"`
	TournamentID   *int64       `db:"tournament_id"`
	Text           string       `db:"text"`
	Options        [4]string    // indexed by Letter
	Correct        Letter       `db:"correct_option"`
	TimesAsked     int          `db:"times_asked"`
	TimesCorrect   int          `db:"times_correct"`
}

// Option returns the text of the given option.
func (q *Question) Option(l Letter) string {
	return q.Options[l]
}

// CorrectText returns the text of the correct option.
func (q *Question) CorrectText() string {
	return q.Options[q.Correct]
}

// Payout is a pending prize ledger entry written at game completion.
type Payout struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	SessionID string    `db:"session_id"`
	Amount    int64     `db:"amount"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

// Payout statuses.
const (
	PayoutPending = "pending"
	PayoutPaid    = "paid"
)

// Tournament is a time-boxed competition with its own leaderboard.
type Tournament struct {
	ID         int64     `db:"id"`
	Name       string    `db:"name"`
	Status     string    `db:"status"`
	TokenGated bool      `db:"token_gated"`
	StartsAt   time.Time `db:"starts_at"`
	EndsAt     time.Time `db:"ends_at"`
}

// Tournament statuses.
const (
	TournamentActive   = "active"
	TournamentFinished = "finished"
)

// TournamentStatus is the eligibility snapshot of one user in one tournament.
type TournamentStatus struct {
	Tournament      Tournament
	Enrolled        bool
	PaymentComplete bool
	TokensRemaining int
	BestScore       int64
	Attempts        int
}
