package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"millionaire-bot/internal/model"
)

// Session repository errors.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrActiveSessionExists = errors.New("user already has an active session")
)

const pgUniqueViolation = "23505"

const sessionColumns = `session_id, user_id, current_question, score, current_question_id,
	fifty_fifty_used, switch_used, game_kind, tournament_id, entry_consumed, channel, status,
	started_at, updated_at, completed_at`

// SessionRepository persists game sessions. A partial unique index keeps at
// most one active session per user.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.SessionID,
		&s.UserID,
		&s.CurrentQuestion,
		&s.Score,
		&s.CurrentQuestionID,
		&s.FiftyFiftyUsed,
		&s.SwitchUsed,
		&s.Kind,
		&s.TournamentID,
		&s.EntryConsumed,
		&s.Channel,
		&s.Status,
		&s.StartedAt,
		&s.UpdatedAt,
		&s.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]*model.Session, error) {
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// Create inserts a new active session at question 1.
// Returns ErrActiveSessionExists if the user already has one.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) (*model.Session, error) {
	const query = `
		INSERT INTO sessions (session_id, user_id, current_question, score, game_kind,
			tournament_id, channel, status, started_at, updated_at)
		VALUES ($1, $2, 1, 0, $3, $4, $5, 'active', NOW(), NOW())
		RETURNING ` + sessionColumns

	created, err := scanSession(r.pool.QueryRow(ctx, query,
		s.SessionID, s.UserID, s.Kind, s.TournamentID, s.Channel))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrActiveSessionExists
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return created, nil
}

// Discard removes a freshly reserved session whose entry was never consumed.
func (r *SessionRepository) Discard(ctx context.Context, sessionID string) error {
	const query = `
		DELETE FROM sessions
		WHERE session_id = $1 AND status = 'active' AND entry_consumed = FALSE
	`
	if _, err := r.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to discard session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by its key.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*model.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetActiveByUser retrieves the user's active session.
// Returns ErrSessionNotFound if there is none.
func (r *SessionRepository) GetActiveByUser(ctx context.Context, userID int64) (*model.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 AND status = 'active'`

	s, err := scanSession(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return s, nil
}

// ListActive returns every active session, oldest first.
func (r *SessionRepository) ListActive(ctx context.Context) ([]*model.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE status = 'active' ORDER BY started_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return collectSessions(rows)
}

// MarkEntryConsumed records that the session's entry cost was paid. It is never unset.
func (r *SessionRepository) MarkEntryConsumed(ctx context.Context, sessionID string) error {
	const query = `
		UPDATE sessions
		SET entry_consumed = TRUE, updated_at = NOW()
		WHERE session_id = $1
	`
	result, err := r.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark entry consumed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SetCurrentQuestionID associates the asked question with an active session. nil clears it.
func (r *SessionRepository) SetCurrentQuestionID(ctx context.Context, sessionID string, questionID *int64) error {
	const query = `
		UPDATE sessions
		SET current_question_id = $2, updated_at = NOW()
		WHERE session_id = $1 AND status = 'active'
	`
	result, err := r.pool.Exec(ctx, query, sessionID, questionID)
	if err != nil {
		return fmt.Errorf("failed to set current question: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotActive
	}
	return nil
}

// Advance moves an active session from question `from` to the next one with the new score.
// It reports false when the session already moved on or is no longer active.
func (r *SessionRepository) Advance(ctx context.Context, sessionID string, from int, score int64) (bool, error) {
	const query = `
		UPDATE sessions
		SET current_question = current_question + 1,
			score = $3,
			current_question_id = NULL,
			updated_at = NOW()
		WHERE session_id = $1 AND status = 'active' AND current_question = $2
	`
	result, err := r.pool.Exec(ctx, query, sessionID, from, score)
	if err != nil {
		return false, fmt.Errorf("failed to advance session: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkLifelineUsed sets a lifeline flag and reports whether this call flipped it.
func (r *SessionRepository) MarkLifelineUsed(ctx context.Context, sessionID string, lifeline model.Lifeline) (bool, error) {
	var query string
	switch lifeline {
	case model.LifelineFiftyFifty:
		query = `
			UPDATE sessions SET fifty_fifty_used = TRUE, updated_at = NOW()
			WHERE session_id = $1 AND status = 'active' AND fifty_fifty_used = FALSE
		`
	case model.LifelineSwitch:
		query = `
			UPDATE sessions SET switch_used = TRUE, current_question_id = NULL, updated_at = NOW()
			WHERE session_id = $1 AND status = 'active' AND switch_used = FALSE
		`
	default:
		return false, fmt.Errorf("unknown lifeline %q", lifeline)
	}

	result, err := r.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to mark lifeline used: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Finish moves an active session to a terminal status with its final score.
// Exactly one caller observes true for a given session.
func (r *SessionRepository) Finish(ctx context.Context, sessionID string, status model.SessionStatus, score int64) (bool, error) {
	const query = `
		UPDATE sessions
		SET status = $2, score = $3, completed_at = NOW(), updated_at = NOW()
		WHERE session_id = $1 AND status = 'active'
	`
	result, err := r.pool.Exec(ctx, query, sessionID, status, score)
	if err != nil {
		return false, fmt.Errorf("failed to finish session: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// CancelStale cancels every active session started before olderThan and returns them.
func (r *SessionRepository) CancelStale(ctx context.Context, olderThan time.Time) ([]*model.Session, error) {
	const query = `
		UPDATE sessions
		SET status = 'cancelled', completed_at = NOW(), updated_at = NOW()
		WHERE status = 'active' AND started_at < $1
		RETURNING ` + sessionColumns

	rows, err := r.pool.Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel stale sessions: %w", err)
	}
	return collectSessions(rows)
}
