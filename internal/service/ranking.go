package service

import (
	"context"

	"millionaire-bot/internal/model"
)

// LeaderboardStore lists players by lifetime winnings.
type LeaderboardStore interface {
	GetTopByWinnings(ctx context.Context, limit int) ([]*model.User, error)
}

// Standing is one leaderboard row.
type Standing struct {
	Rank int
	User *model.User
}

// RankingService handles the winnings leaderboard.
type RankingService struct {
	users LeaderboardStore
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(users LeaderboardStore) *RankingService {
	return &RankingService{users: users}
}

// TopByWinnings returns the top players with competition ranks.
func (s *RankingService) TopByWinnings(ctx context.Context, limit int) ([]Standing, error) {
	users, err := s.users.GetTopByWinnings(ctx, limit)
	if err != nil {
		return nil, err
	}
	return Standings(users), nil
}

// Standings assigns ranks to users already ordered by winnings descending.
// Equal winnings share a rank and the next distinct amount skips ahead (1, 2, 2, 4).
func Standings(users []*model.User) []Standing {
	out := make([]Standing, len(users))
	for i, u := range users {
		rank := i + 1
		if i > 0 && u.TotalWinnings == users[i-1].TotalWinnings {
			rank = out[i-1].Rank
		}
		out[i] = Standing{Rank: rank, User: u}
	}
	return out
}
