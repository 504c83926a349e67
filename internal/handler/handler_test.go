package handler

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"millionaire-bot/internal/model"
	"millionaire-bot/internal/service"
)

func TestClassifyText(t *testing.T) {
	tests := []struct {
		text   string
		action Action
		letter model.Letter
	}{
		{"A", ActionAnswer, model.LetterA},
		{" d ", ActionAnswer, model.LetterD},
		{"c", ActionAnswer, model.LetterC},
		{"start", ActionReady, 0},
		{"START", ActionReady, 0},
		{"50:50", ActionFiftyFifty, 0},
		{"50/50", ActionFiftyFifty, 0},
		{LabelSwitch, ActionSwitch, 0},
		{"switch", ActionSwitch, 0},
		{"E", ActionNone, 0},
		{"AB", ActionNone, 0},
		{"hello there", ActionNone, 0},
		{"", ActionNone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			action, letter := ClassifyText(tt.text)
			assert.Equal(t, tt.action, action)
			if tt.action == ActionAnswer {
				assert.Equal(t, tt.letter, letter)
			}
		})
	}
}

// TestClassifyText_LongTextNeverAnswers checks that no message longer than one
// letter is mistaken for an answer.
func TestClassifyText_LongTextNeverAnswers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[A-Da-d][A-Za-z ]{1,20}[A-Za-z]`).Draw(t, "text")
		action, _ := ClassifyText(text)
		if action == ActionAnswer {
			t.Fatalf("%q classified as an answer", text)
		}
	})
}

func TestKeyboardLabelsClassify(t *testing.T) {
	kb := BuildGameKeyboard()
	require.Len(t, kb.ReplyKeyboard, 3)

	for _, row := range kb.ReplyKeyboard {
		for _, btn := range row {
			action, _ := ClassifyText(btn.Text)
			assert.NotEqual(t, ActionNone, action, "button %q must route somewhere", btn.Text)
		}
	}
}

func TestParseTournamentID(t *testing.T) {
	id, err := parseTournamentID([]string{"42"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, args := range [][]string{nil, {"abc"}, {"0"}, {"-3"}} {
		_, err := parseTournamentID(args)
		assert.Error(t, err, "args %v", args)
	}
}

func TestParseGrantArgs(t *testing.T) {
	target, n, err := parseGrantArgs([]string{"123456789", "3"})
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), target)
	assert.Equal(t, 3, n)

	_, _, err = parseGrantArgs([]string{"123"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "❌ Usage:"))

	_, _, err = parseGrantArgs([]string{"bob", "3"})
	assert.Error(t, err)
	_, _, err = parseGrantArgs([]string{"123", "0"})
	assert.Error(t, err)
}

func TestParseGrantArgsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		target := rapid.Int64Range(1, 1<<40).Draw(t, "target")
		n := rapid.IntRange(1, 1000).Draw(t, "n")

		gotTarget, gotN, err := parseGrantArgs([]string{strconv.FormatInt(target, 10), strconv.Itoa(n)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotTarget != target || gotN != n {
			t.Fatalf("got (%d, %d), want (%d, %d)", gotTarget, gotN, target, n)
		}
	})
}

func TestFormatLeaderboard(t *testing.T) {
	assert.Contains(t, formatLeaderboard(nil), "Nobody")

	text := formatLeaderboard(service.Standings([]*model.User{
		{TelegramID: 1, Username: "ana", TotalWinnings: 50000},
		{TelegramID: 2, Username: "bo", TotalWinnings: 1000},
		{TelegramID: 3, TotalWinnings: 1000},
		{TelegramID: 4, Username: "cy", TotalWinnings: 100},
	}))

	assert.Contains(t, text, "🥇 ana: 50,000")
	assert.Contains(t, text, "🥈 bo: 1,000")
	assert.Contains(t, text, "🥈 User3: 1,000", "ties share a rank")
	assert.Contains(t, text, "4. cy: 100")
}

func TestFormatProfile(t *testing.T) {
	p := &service.Profile{
		User:    &model.User{TelegramID: 1, GamesPlayed: 12, HighestQuestion: 11, TotalWinnings: 12500, StreakDays: 4},
		Entries: 2,
	}
	text := formatProfile(p)
	assert.Contains(t, text, "Games played: 12")
	assert.Contains(t, text, "question 11")
	assert.Contains(t, text, "12,500")
	assert.Contains(t, text, "Entries left: 2")
	assert.NotContains(t, text, "Awaiting payout")

	p.PendingPayouts = 1000
	assert.Contains(t, formatProfile(p), "Awaiting payout: 1,000")
}
