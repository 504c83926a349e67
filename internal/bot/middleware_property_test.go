package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"millionaire-bot/internal/config"
)

// fakeContext implements the parts of tele.Context the middleware touches.
type fakeContext struct {
	tele.Context
	chat    *tele.Chat
	sender  *tele.User
	text    string
	replies []string
}

func (c *fakeContext) Chat() *tele.Chat   { return c.chat }
func (c *fakeContext) Sender() *tele.User { return c.sender }
func (c *fakeContext) Text() string       { return c.text }

func (c *fakeContext) Reply(what interface{}, _ ...interface{}) error {
	c.replies = append(c.replies, what.(string))
	return nil
}

func newContext(chatID int64, chatType tele.ChatType, userID int64) *fakeContext {
	return &fakeContext{
		chat:   &tele.Chat{ID: chatID, Type: chatType},
		sender: &tele.User{ID: userID},
	}
}

// run passes c through mw and reports whether the wrapped handler ran.
func run(mw tele.MiddlewareFunc, c tele.Context) bool {
	called := false
	_ = mw(func(tele.Context) error {
		called = true
		return nil
	})(c)
	return called
}

// TestAdminPermissionCheckProperty checks that a user is an admin exactly when
// their id is configured.
func TestAdminPermissionCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := rapid.SliceOfN(rapid.Int64Range(1, 1000000000), 1, 10).Draw(t, "adminIDs")
		cfg := &config.Config{Admin: config.AdminConfig{IDs: adminIDs}}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		known := adminIDs[rapid.IntRange(0, len(adminIDs)-1).Draw(t, "index")]

		expected := false
		for _, id := range adminIDs {
			if id == userID {
				expected = true
				break
			}
		}

		if cfg.IsAdmin(userID) != expected {
			t.Fatalf("admin check mismatch: userID=%d, adminIDs=%v", userID, adminIDs)
		}
		if !cfg.IsAdmin(known) {
			t.Fatalf("configured admin %d not recognised", known)
		}
	})
}

// TestWhitelistEnforcementProperty checks that a group chat is served exactly
// when it is whitelisted.
func TestWhitelistEnforcementProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chatIDs := rapid.SliceOfN(rapid.Int64Range(-1000000000, -1), 1, 10).Draw(t, "chatIDs")
		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: chatIDs}}

		chatID := rapid.Int64Range(-1000000000, -1).Draw(t, "chatID")
		expected := false
		for _, id := range chatIDs {
			if id == chatID {
				expected = true
				break
			}
		}

		served := run(WhitelistMiddleware(cfg, NewPrivateAccess()), newContext(chatID, tele.ChatGroup, 7))
		if served != expected {
			t.Fatalf("chat %d served=%v, whitelist=%v", chatID, served, chatIDs)
		}
	})
}

func TestEmptyWhitelistAllowsAllChatsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := &config.Config{}
		chatID := rapid.Int64Range(-1000000000, 1000000000).Draw(t, "chatID")
		if !cfg.IsChatAllowed(chatID) {
			t.Fatalf("with an empty whitelist chat %d should be allowed", chatID)
		}
	})
}

func TestWhitelistMiddleware_PrivateChatNeedsGroupVisit(t *testing.T) {
	cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: []int64{-100}}}
	access := NewPrivateAccess()
	mw := WhitelistMiddleware(cfg, access)

	assert.False(t, run(mw, newContext(42, tele.ChatPrivate, 42)), "unknown user in private chat is ignored")

	assert.True(t, run(mw, newContext(-100, tele.ChatSuperGroup, 42)))
	assert.True(t, access.Allowed(42))

	assert.True(t, run(mw, newContext(42, tele.ChatPrivate, 42)), "user seen in a whitelisted group may play privately")
	assert.False(t, run(mw, newContext(43, tele.ChatPrivate, 43)))
}

func TestWhitelistMiddleware_EmptyWhitelistServesPrivateChats(t *testing.T) {
	mw := WhitelistMiddleware(&config.Config{}, NewPrivateAccess())
	assert.True(t, run(mw, newContext(42, tele.ChatPrivate, 42)))
}

func TestAdminMiddleware(t *testing.T) {
	cfg := &config.Config{Admin: config.AdminConfig{IDs: []int64{1}}}
	mw := AdminMiddleware(cfg)

	assert.True(t, run(mw, newContext(1, tele.ChatPrivate, 1)))

	c := newContext(2, tele.ChatPrivate, 2)
	assert.False(t, run(mw, c))
	assert.Len(t, c.replies, 1)
}

func TestRecoveryMiddleware(t *testing.T) {
	c := newContext(1, tele.ChatPrivate, 1)
	err := RecoveryMiddleware()(func(tele.Context) error {
		panic("boom")
	})(c)

	assert.NoError(t, err)
	assert.Len(t, c.replies, 1)
}
