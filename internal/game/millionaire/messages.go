package millionaire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"millionaire-bot/internal/model"
)

// FormatPrize renders an amount with thousands separators, e.g. 50,000.
func FormatPrize(amount int64) string {
	s := strconv.FormatInt(amount, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func (e *Engine) instructionsText(s *model.Session, tournamentName string) string {
	var b strings.Builder
	switch s.Kind {
	case model.KindPractice:
		b.WriteString("🎯 *Practice round*\nNothing is paid out, so take your time learning the ropes.\n\n")
	case model.KindTournament:
		fmt.Fprintf(&b, "🏟 *Tournament: %s*\nYour best score counts towards the tournament leaderboard.\n\n", tournamentName)
	default:
		fmt.Fprintf(&b, "💰 *Who Wants to Be a Millionaire*\nClimb %d questions to win %s.\n\n",
			e.ladder.Len(), FormatPrize(e.ladder.Prize(e.ladder.Len())))
	}

	safe := make([]string, 0, 2)
	for _, q := range e.ladder.SafeRungs() {
		safe = append(safe, fmt.Sprintf("Q%d (%s)", q, FormatPrize(e.ladder.Prize(q))))
	}
	fmt.Fprintf(&b, "• You have %d seconds per question. Reply A, B, C or D.\n", int(e.cfg.QuestionTimeout.Seconds()))
	if len(safe) > 0 {
		fmt.Fprintf(&b, "• Safe checkpoints: %s.\n", strings.Join(safe, ", "))
	}
	b.WriteString("• Lifelines: /5050 removes two wrong answers, /switch replaces the question. One use each.\n\n")
	fmt.Fprintf(&b, "Reply *START* within %d minutes when you are ready.", int(e.cfg.ReadyWindow.Minutes()))
	return b.String()
}

func (e *Engine) questionText(s *model.Session, q *model.Question, letters []model.Letter, remaining time.Duration) string {
	var b strings.Builder
	rung := s.CurrentQuestion
	fmt.Fprintf(&b, "❓ *Question %d/%d* for %s", rung, e.ladder.Len(), FormatPrize(e.ladder.Prize(rung)))
	if e.ladder.IsSafe(rung) {
		b.WriteString(" (SAFE)")
	}
	fmt.Fprintf(&b, "\n\n%s\n\n", q.Text)
	for _, l := range letters {
		fmt.Fprintf(&b, "%s. %s\n", l, q.Option(l))
	}
	fmt.Fprintf(&b, "\n⏱ %d seconds", int(remaining.Round(time.Second).Seconds()))

	var lifelines []string
	if !s.FiftyFiftyUsed {
		lifelines = append(lifelines, "/5050")
	}
	if !s.SwitchUsed {
		lifelines = append(lifelines, "/switch")
	}
	if len(lifelines) > 0 {
		fmt.Fprintf(&b, "\nLifelines: %s", strings.Join(lifelines, " "))
	}
	return b.String()
}

func (e *Engine) correctText(answered int, won int64) string {
	next := answered + 1
	msg := fmt.Sprintf("✅ Correct! You have %s.", FormatPrize(won))
	if e.ladder.IsSafe(answered) {
		msg += fmt.Sprintf("\n🔒 %s is now guaranteed.", FormatPrize(won))
	}
	return msg + fmt.Sprintf("\nNext up: question %d for %s...", next, FormatPrize(e.ladder.Prize(next)))
}

func (e *Engine) terminalText(s *model.Session, out Outcome) string {
	var b strings.Builder
	switch out.Kind {
	case OutcomeGrandPrize:
		fmt.Fprintf(&b, "🏆 *MILLIONAIRE!* You answered all %d questions correctly and won %s!",
			e.ladder.Len(), FormatPrize(out.Score))
	case OutcomeWrong:
		fmt.Fprintf(&b, "❌ Wrong answer. The correct answer was %s.\nYou leave with %s.",
			out.CorrectAnswer, FormatPrize(out.Score))
	case OutcomeTimeout:
		fmt.Fprintf(&b, "⏰ Time's up!\nYou leave with %s.", FormatPrize(out.Score))
	case OutcomeCancelled:
		return "🔄 Your game was reset. Send /play to start a new one."
	}

	switch {
	case s.Kind == model.KindPractice:
		b.WriteString("\n\n🎯 Practice summary: nothing is paid out. Send /play for the real thing.")
	case out.Score > 0:
		b.WriteString("\n\n💸 Your prize has been recorded and will be paid out shortly.")
	}
	b.WriteString("\nSend /play to try again.")
	return b.String()
}

func rejectionText(r Reason) string {
	switch r {
	case ReasonNoEntries:
		return "🎟 You have no game entries left. Buy more entries to play."
	case ReasonTournamentNotFound:
		return "🏟 That tournament does not exist."
	case ReasonTournamentClosed:
		return "🏟 That tournament is not running right now."
	case ReasonNotEnrolled:
		return "🏟 You have not joined this tournament."
	case ReasonPaymentIncomplete:
		return "🏟 Your tournament payment is not complete yet."
	case ReasonNoTokens:
		return "🏟 You have no tournament tokens left."
	case ReasonAlreadyActive:
		return "⚠️ You already have a game in progress. Finish it or send /reset first."
	}
	return "⚠️ You cannot start a game right now."
}

const (
	textLifelineUsed    = "🚫 You already used that lifeline in this game."
	textIntegrity       = "⚠️ Something went wrong with this game. Send /reset to start over."
	textNoActiveSession = "You have no game in progress. Send /play to start one."
	textNotReady        = "No game is waiting for you. Send /play to start one."
	textQuestionPending = "⏳ Hold on, your next question is on its way."
	textSwitching       = "🔁 Switching your question..."
)

// FailureText is the message shown for an error the engine did not already explain.
func FailureText(err error) string {
	if errors.Is(err, ErrContentExhausted) {
		return "😔 We ran out of questions for this round. Send /reset and try again later."
	}
	return "😔 Sorry, something went wrong. Please try again."
}
