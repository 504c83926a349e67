package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"millionaire-bot/internal/model"
)

// Tournament repository errors.
var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrNoTokens           = errors.New("no tournament tokens remaining")
)

// TournamentRepository handles tournaments and their participants.
type TournamentRepository struct {
	pool *pgxpool.Pool
}

// NewTournamentRepository creates a new TournamentRepository instance.
func NewTournamentRepository(pool *pgxpool.Pool) *TournamentRepository {
	return &TournamentRepository{pool: pool}
}

// Create opens a new tournament running until endsAt.
func (r *TournamentRepository) Create(ctx context.Context, name string, tokenGated bool, endsAt time.Time) (*model.Tournament, error) {
	const query = `
		INSERT INTO tournaments (name, status, token_gated, starts_at, ends_at)
		VALUES ($1, 'active', $2, NOW(), $3)
		RETURNING id, name, status, token_gated, starts_at, ends_at
	`
	var t model.Tournament
	err := r.pool.QueryRow(ctx, query, name, tokenGated, endsAt).Scan(
		&t.ID, &t.Name, &t.Status, &t.TokenGated, &t.StartsAt, &t.EndsAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	return &t, nil
}

// Enroll adds or updates a participant.
func (r *TournamentRepository) Enroll(ctx context.Context, tournamentID, userID int64, paid bool, tokens int) error {
	const query = `
		INSERT INTO tournament_participants (tournament_id, user_id, payment_complete, tokens_remaining, joined_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tournament_id, user_id)
		DO UPDATE SET payment_complete = EXCLUDED.payment_complete,
			tokens_remaining = tournament_participants.tokens_remaining + EXCLUDED.tokens_remaining
	`
	if _, err := r.pool.Exec(ctx, query, tournamentID, userID, paid, tokens); err != nil {
		return fmt.Errorf("failed to enroll participant: %w", err)
	}
	return nil
}

// Status returns the user's eligibility snapshot for a tournament.
// Returns ErrTournamentNotFound if the tournament does not exist.
func (r *TournamentRepository) Status(ctx context.Context, userID, tournamentID int64) (*model.TournamentStatus, error) {
	const query = `
		SELECT t.id, t.name, t.status, t.token_gated, t.starts_at, t.ends_at,
			p.user_id IS NOT NULL,
			COALESCE(p.payment_complete, FALSE),
			COALESCE(p.tokens_remaining, 0),
			COALESCE(p.best_score, 0),
			COALESCE(p.attempts, 0)
		FROM tournaments t
		LEFT JOIN tournament_participants p ON p.tournament_id = t.id AND p.user_id = $2
		WHERE t.id = $1
	`
	var st model.TournamentStatus
	err := r.pool.QueryRow(ctx, query, tournamentID, userID).Scan(
		&st.Tournament.ID,
		&st.Tournament.Name,
		&st.Tournament.Status,
		&st.Tournament.TokenGated,
		&st.Tournament.StartsAt,
		&st.Tournament.EndsAt,
		&st.Enrolled,
		&st.PaymentComplete,
		&st.TokensRemaining,
		&st.BestScore,
		&st.Attempts,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament status: %w", err)
	}
	return &st, nil
}

// CanUserPlay reports whether the user may start a tournament game right now.
func (r *TournamentRepository) CanUserPlay(ctx context.Context, userID, tournamentID int64) (bool, error) {
	st, err := r.Status(ctx, userID, tournamentID)
	if err != nil {
		if errors.Is(err, ErrTournamentNotFound) {
			return false, nil
		}
		return false, err
	}
	if st.Tournament.Status != model.TournamentActive || !st.Enrolled || !st.PaymentComplete {
		return false, nil
	}
	return !st.Tournament.TokenGated || st.TokensRemaining > 0, nil
}

// DeductToken atomically consumes one tournament token and returns how many remain.
// Returns ErrNoTokens if none were left.
func (r *TournamentRepository) DeductToken(ctx context.Context, userID, tournamentID int64) (int, error) {
	const query = `
		UPDATE tournament_participants
		SET tokens_remaining = tokens_remaining - 1
		WHERE tournament_id = $1 AND user_id = $2 AND tokens_remaining > 0
		RETURNING tokens_remaining
	`
	var remaining int
	err := r.pool.QueryRow(ctx, query, tournamentID, userID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNoTokens
		}
		return 0, fmt.Errorf("failed to deduct token: %w", err)
	}
	return remaining, nil
}

// RecordAttempt counts a finished attempt and keeps the participant's best result.
func (r *TournamentRepository) RecordAttempt(ctx context.Context, userID, tournamentID int64, score int64, question int) error {
	const query = `
		UPDATE tournament_participants
		SET attempts = attempts + 1,
			best_score = GREATEST(best_score, $3),
			best_question = GREATEST(best_question, $4)
		WHERE tournament_id = $1 AND user_id = $2
	`
	result, err := r.pool.Exec(ctx, query, tournamentID, userID, score, question)
	if err != nil {
		return fmt.Errorf("failed to record tournament attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTournamentNotFound
	}
	return nil
}
