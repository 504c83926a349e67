package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoEntries is returned when a paid game is requested without a remaining entry.
var ErrNoEntries = errors.New("no game entries remaining")

// ItemGameEntry is the user_items type holding paid game entries.
const ItemGameEntry = "game_entry"

// EntryRepository tracks purchased game entries in the user_items table.
type EntryRepository struct {
	pool *pgxpool.Pool
}

// NewEntryRepository creates a new EntryRepository instance.
func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return &EntryRepository{pool: pool}
}

// Remaining returns the user's entry count, 0 if they never bought any.
func (r *EntryRepository) Remaining(ctx context.Context, userID int64) (int, error) {
	const query = `
		SELECT quantity FROM user_items
		WHERE user_id = $1 AND item_type = $2
	`
	var n int
	err := r.pool.QueryRow(ctx, query, userID, ItemGameEntry).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get entries: %w", err)
	}
	return n, nil
}

// HasEntriesRemaining reports whether the user can pay for a regular game.
func (r *EntryRepository) HasEntriesRemaining(ctx context.Context, userID int64) (bool, error) {
	n, err := r.Remaining(ctx, userID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeductEntry atomically consumes one entry and returns how many remain.
// Returns ErrNoEntries if the count was already zero.
func (r *EntryRepository) DeductEntry(ctx context.Context, userID int64) (int, error) {
	const query = `
		UPDATE user_items
		SET quantity = quantity - 1, updated_at = NOW()
		WHERE user_id = $1 AND item_type = $2 AND quantity > 0
		RETURNING quantity
	`
	var remaining int
	err := r.pool.QueryRow(ctx, query, userID, ItemGameEntry).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNoEntries
		}
		return 0, fmt.Errorf("failed to deduct entry: %w", err)
	}
	return remaining, nil
}

// GrantEntries adds n entries to the user's balance and returns the new count.
func (r *EntryRepository) GrantEntries(ctx context.Context, userID int64, n int) (int, error) {
	const query = `
		INSERT INTO user_items (user_id, item_type, quantity, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, item_type)
		DO UPDATE SET quantity = user_items.quantity + $3, updated_at = NOW()
		RETURNING quantity
	`
	var total int
	if err := r.pool.QueryRow(ctx, query, userID, ItemGameEntry, n).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to grant entries: %w", err)
	}
	return total, nil
}
