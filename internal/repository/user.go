// Package repository provides data access layer implementations.
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

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

const userColumns = `telegram_id, username, games_played, total_winnings, highest_question,
	streak_days, last_played_on, created_at, updated_at`

// UserRepository handles user aggregate persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.TelegramID,
		&user.Username,
		&user.GamesPlayed,
		&user.TotalWinnings,
		&user.HighestQuestion,
		&user.StreakDays,
		&user.LastPlayedOn,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create creates a new user with zeroed counters.
func (r *UserRepository) Create(ctx context.Context, telegramID int64, username string) (*model.User, error) {
	const query = `
		INSERT INTO users (telegram_id, username, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID, username))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by their Telegram ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, telegramID int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetOrCreate retrieves a user by Telegram ID, creating one if it doesn't exist.
func (r *UserRepository) GetOrCreate(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, telegramID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, telegramID, username)
	if err != nil {
		// Another request may have created the user first.
		user, err = r.GetByID(ctx, telegramID)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}
	return user, true, nil
}

// RecordGame applies one completed game to the user's aggregate counters.
// The user row is created if it does not exist yet.
func (r *UserRepository) RecordGame(ctx context.Context, telegramID int64, score int64, reached int) (*model.User, error) {
	const query = `
		INSERT INTO users (telegram_id, games_played, total_winnings, highest_question, created_at, updated_at)
		VALUES ($1, 1, $2, $3, NOW(), NOW())
		ON CONFLICT (telegram_id) DO UPDATE SET
			games_played     = users.games_played + 1,
			total_winnings   = users.total_winnings + EXCLUDED.total_winnings,
			highest_question = GREATEST(users.highest_question, EXCLUDED.highest_question),
			updated_at       = NOW()
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID, score, reached))
	if err != nil {
		return nil, fmt.Errorf("failed to record game: %w", err)
	}
	return user, nil
}

// TouchStreak registers play on day and returns the resulting daily streak.
// Playing again the same day keeps the streak, playing the next day extends it,
// any gap resets it to 1.
func (r *UserRepository) TouchStreak(ctx context.Context, telegramID int64, day time.Time) (int, error) {
	const query = `
		INSERT INTO users (telegram_id, streak_days, last_played_on, created_at, updated_at)
		VALUES ($1, 1, $2::date, NOW(), NOW())
		ON CONFLICT (telegram_id) DO UPDATE SET
			streak_days = CASE
				WHEN users.last_played_on = $2::date THEN users.streak_days
				WHEN users.last_played_on = $2::date - 1 THEN users.streak_days + 1
				ELSE 1
			END,
			last_played_on = $2::date,
			updated_at     = NOW()
		RETURNING streak_days
	`

	var streak int
	if err := r.pool.QueryRow(ctx, query, telegramID, day).Scan(&streak); err != nil {
		return 0, fmt.Errorf("failed to update streak: %w", err)
	}
	return streak, nil
}

// GetTopByWinnings retrieves the top N users by lifetime winnings.
func (r *UserRepository) GetTopByWinnings(ctx context.Context, limit int) ([]*model.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE games_played > 0
		ORDER BY total_winnings DESC, highest_question DESC, telegram_id
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// UpdateUsername updates a user's username.
func (r *UserRepository) UpdateUsername(ctx context.Context, telegramID int64, username string) error {
	const query = `
		UPDATE users
		SET username = $2, updated_at = NOW()
		WHERE telegram_id = $1
	`

	result, err := r.pool.Exec(ctx, query, telegramID, username)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
