package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"millionaire-bot/internal/handler"
)

// TelegramSender delivers engine messages to private chats.
// Every message carries the answer keyboard so players can tap instead of type.
type TelegramSender struct {
	bot      *tele.Bot
	keyboard *tele.ReplyMarkup
}

// NewTelegramSender creates a sender bound to the given bot.
func NewTelegramSender(bot *tele.Bot) *TelegramSender {
	return &TelegramSender{bot: bot, keyboard: handler.BuildGameKeyboard()}
}

// SendMessage sends text to a user's private chat.
// Text that Telegram refuses to parse as Markdown is resent as plain text.
func (s *TelegramSender) SendMessage(ctx context.Context, recipient int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	to := tele.ChatID(recipient)
	_, err := s.bot.Send(to, text, tele.ModeMarkdown, s.keyboard)
	if err == nil {
		return nil
	}
	if !strings.Contains(err.Error(), "can't parse entities") {
		return fmt.Errorf("failed to send message: %w", err)
	}
	log.Warn().Err(err).Int64("user_id", recipient).Msg("Markdown send failed, retrying as plain text")

	if _, err := s.bot.Send(to, text, s.keyboard); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
