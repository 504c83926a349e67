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

// AccountHandler handles account-related commands.
type AccountHandler struct {
	accountService *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// HandleStart handles the /start command.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	name := displayName(sender)
	_, created, err := h.accountService.EnsureUser(context.Background(), sender.ID, name)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to ensure user")
		return c.Reply("❌ Could not set up your account, please try again later")
	}

	greeting := fmt.Sprintf("👋 Welcome back, %s!", name)
	if created {
		greeting = fmt.Sprintf("🎉 Welcome, %s!", name)
	}
	return c.Reply(greeting + "\n\n" + helpText)
}

const helpText = "Answer 15 questions to become a millionaire.\n\n" +
	"Commands:\n" +
	"/play - start a paid game\n" +
	"/practice - start a free practice game\n" +
	"/tournament <id> - play a tournament round\n" +
	"/5050 - remove two wrong answers\n" +
	"/switch - replace the current question\n" +
	"/reset - abandon the current game\n" +
	"/my - your stats\n" +
	"/top - leaderboard"

// HandleMy handles the /my command.
func (h *AccountHandler) HandleMy(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	p, err := h.accountService.Profile(context.Background(), sender.ID, displayName(sender))
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to load profile")
		return c.Reply("❌ Could not load your profile, please try again later")
	}

	return c.Reply(formatProfile(p))
}

func formatProfile(p *service.Profile) string {
	u := p.User
	var b strings.Builder
	b.WriteString("📊 Your stats\n")
	b.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "🎮 Games played: %d\n", u.GamesPlayed)
	fmt.Fprintf(&b, "🏔 Best run: question %d\n", u.HighestQuestion)
	fmt.Fprintf(&b, "💰 Total winnings: %s\n", millionaire.FormatPrize(u.TotalWinnings))
	fmt.Fprintf(&b, "🔥 Daily streak: %d\n", u.StreakDays)
	fmt.Fprintf(&b, "🎟 Entries left: %d\n", p.Entries)
	if p.PendingPayouts > 0 {
		fmt.Fprintf(&b, "💸 Awaiting payout: %s\n", millionaire.FormatPrize(p.PendingPayouts))
	}
	b.WriteString("━━━━━━━━━━━━━━━")
	return b.String()
}
