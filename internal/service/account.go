// Package service provides business logic implementations.
package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"millionaire-bot/internal/model"
)

// UserStore is the user persistence the account service needs.
type UserStore interface {
	GetOrCreate(ctx context.Context, telegramID int64, username string) (*model.User, bool, error)
	UpdateUsername(ctx context.Context, telegramID int64, username string) error
}

// EntryStore reports and grants paid game entries.
type EntryStore interface {
	Remaining(ctx context.Context, userID int64) (int, error)
	GrantEntries(ctx context.Context, userID int64, n int) (int, error)
}

// PayoutStore reads the prize ledger.
type PayoutStore interface {
	PendingTotal(ctx context.Context, userID int64) (int64, error)
}

// Profile is what /my shows a player.
type Profile struct {
	User           *model.User
	Entries        int
	PendingPayouts int64
}

// AccountService handles player accounts, entries and profiles.
type AccountService struct {
	users   UserStore
	entries EntryStore
	payouts PayoutStore
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(users UserStore, entries EntryStore, payouts PayoutStore) *AccountService {
	return &AccountService{
		users:   users,
		entries: entries,
		payouts: payouts,
	}
}

// EnsureUser ensures a user exists, creating one if necessary.
// Returns the user and whether it was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	user, created, err := s.users.GetOrCreate(ctx, telegramID, username)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	if !created && user.Username != username && username != "" {
		if err := s.users.UpdateUsername(ctx, telegramID, username); err != nil {
			log.Warn().Err(err).Int64("user_id", telegramID).Msg("Failed to update username")
		}
		user.Username = username
	}

	return user, created, nil
}

// Profile gathers a player's aggregates, entries left and unpaid prizes.
func (s *AccountService) Profile(ctx context.Context, telegramID int64, username string) (*Profile, error) {
	user, _, err := s.EnsureUser(ctx, telegramID, username)
	if err != nil {
		return nil, err
	}

	entries, err := s.entries.Remaining(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries: %w", err)
	}

	pending, err := s.payouts.PendingTotal(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending payouts: %w", err)
	}

	return &Profile{User: user, Entries: entries, PendingPayouts: pending}, nil
}

// GrantEntries adds paid entries to a player's account and returns the new count.
func (s *AccountService) GrantEntries(ctx context.Context, telegramID int64, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("entry count must be positive, got %d", n)
	}
	total, err := s.entries.GrantEntries(ctx, telegramID, n)
	if err != nil {
		return 0, fmt.Errorf("failed to grant entries: %w", err)
	}
	log.Info().Int64("user_id", telegramID).Int("granted", n).Int("total", total).Msg("Entries granted")
	return total, nil
}
