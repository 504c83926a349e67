package handler

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"millionaire-bot/internal/model"
)

// Reply keyboard labels. Pressing a button sends its label as plain text.
const (
	LabelStart      = "START"
	LabelFiftyFifty = "50:50"
	LabelSwitch     = "🔁 Switch"
)

// Action is what a plain text message asks the game to do.
type Action int

const (
	ActionNone Action = iota
	ActionReady
	ActionAnswer
	ActionFiftyFifty
	ActionSwitch
)

// BuildGameKeyboard creates the persistent answer keyboard shown during a game.
func BuildGameKeyboard() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}

	letters := make([]tele.Btn, 0, len(model.Letters))
	for _, l := range model.Letters {
		letters = append(letters, markup.Text(l.String()))
	}

	markup.Reply(
		markup.Row(letters[:2]...),
		markup.Row(letters[2:]...),
		markup.Row(markup.Text(LabelFiftyFifty), markup.Text(LabelSwitch)),
	)
	return markup
}

// ClassifyText maps a free text message to a game action.
// Letters are accepted in either case; anything unrecognised is ActionNone.
func ClassifyText(text string) (Action, model.Letter) {
	text = strings.TrimSpace(text)
	if l, ok := model.ParseLetter(text); ok {
		return ActionAnswer, l
	}
	switch strings.ToUpper(text) {
	case LabelStart:
		return ActionReady, 0
	case LabelFiftyFifty, "50/50", "5050":
		return ActionFiftyFifty, 0
	case strings.ToUpper(LabelSwitch), "SWITCH":
		return ActionSwitch, 0
	}
	return ActionNone, 0
}

// parseTournamentID reads the tournament id argument of /tournament.
func parseTournamentID(args []string) (int64, error) {
	if len(args) < 1 {
		return 0, errUsage("/tournament <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, errReply("❌ The tournament id must be a positive number")
	}
	return id, nil
}

// parseGrantArgs reads /admin_entries <user_id> <count>.
func parseGrantArgs(args []string) (int64, int, error) {
	if len(args) < 2 {
		return 0, 0, errUsage("/admin_entries <user_id> <count>\nFor example: /admin_entries 123456789 3")
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, errReply("❌ The user id must be a number")
	}

	n, err := strconv.Atoi(args[1])
	if err != nil || n <= 0 {
		return 0, 0, errReply("❌ The entry count must be a positive integer")
	}

	return targetID, n, nil
}

// errReply is an error whose text is safe to show to the user as is.
type errReply string

func (e errReply) Error() string { return string(e) }

func errUsage(usage string) errReply {
	return errReply("❌ Usage: " + usage)
}
