package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"millionaire-bot/internal/model"
)

// PayoutRepository is the pending prize ledger. One row per session at most.
type PayoutRepository struct {
	pool *pgxpool.Pool
}

// NewPayoutRepository creates a new PayoutRepository instance.
func NewPayoutRepository(pool *pgxpool.Pool) *PayoutRepository {
	return &PayoutRepository{pool: pool}
}

// CreatePending writes a pending payout for the session.
// Reports false when the session already has a ledger entry.
func (r *PayoutRepository) CreatePending(ctx context.Context, userID int64, sessionID string, amount int64) (bool, error) {
	const query = `
		INSERT INTO payouts (user_id, session_id, amount, status, created_at)
		VALUES ($1, $2, $3, 'pending', NOW())
		ON CONFLICT (session_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query, userID, sessionID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to create payout: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListByUser returns the user's payouts, newest first.
func (r *PayoutRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Payout, error) {
	const query = `
		SELECT id, user_id, session_id, amount, status, created_at
		FROM payouts
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*model.Payout
	for rows.Next() {
		var p model.Payout
		if err := rows.Scan(&p.ID, &p.UserID, &p.SessionID, &p.Amount, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payouts: %w", err)
	}
	return payouts, nil
}

// PendingTotal sums the user's unpaid prizes.
func (r *PayoutRepository) PendingTotal(ctx context.Context, userID int64) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0) FROM payouts
		WHERE user_id = $1 AND status = 'pending'
	`
	var total int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum pending payouts: %w", err)
	}
	return total, nil
}
