package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"millionaire-bot/internal/game/millionaire"
	"millionaire-bot/internal/service"
)

// leaderboardSize is how many players /top lists.
const leaderboardSize = 10

// RankingHandler handles ranking-related commands.
type RankingHandler struct {
	rankingService *service.RankingService
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(rankingService *service.RankingService) *RankingHandler {
	return &RankingHandler{rankingService: rankingService}
}

// HandleTop handles the /top command.
// Displays the top players by lifetime winnings.
func (h *RankingHandler) HandleTop(c tele.Context) error {
	standings, err := h.rankingService.TopByWinnings(context.Background(), leaderboardSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load leaderboard")
		return c.Reply("❌ Could not load the leaderboard, please try again later")
	}
	return c.Reply(formatLeaderboard(standings))
}

func formatLeaderboard(standings []service.Standing) string {
	if len(standings) == 0 {
		return "📊 Nobody has won anything yet"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏆 Top %d by winnings\n", leaderboardSize)
	b.WriteString("━━━━━━━━━━━━━━━\n")

	medals := []string{"🥇", "🥈", "🥉"}
	for _, s := range standings {
		rank := fmt.Sprintf("%d.", s.Rank)
		if s.Rank <= len(medals) {
			rank = medals[s.Rank-1]
		}

		name := s.User.Username
		if name == "" {
			name = fmt.Sprintf("User%d", s.User.TelegramID)
		}

		fmt.Fprintf(&b, "%s %s: %s\n", rank, name, millionaire.FormatPrize(s.User.TotalWinnings))
	}

	b.WriteString("━━━━━━━━━━━━━━━")
	return b.String()
}
