package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"millionaire-bot/internal/model"
)

type stubUsers struct {
	users   map[int64]*model.User
	renamed []string
	err     error
}

func (s *stubUsers) GetOrCreate(_ context.Context, id int64, username string) (*model.User, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	if u, ok := s.users[id]; ok {
		c := *u
		return &c, false, nil
	}
	u := &model.User{TelegramID: id, Username: username}
	s.users[id] = u
	c := *u
	return &c, true, nil
}

func (s *stubUsers) UpdateUsername(_ context.Context, id int64, username string) error {
	s.users[id].Username = username
	s.renamed = append(s.renamed, username)
	return nil
}

type stubEntries struct {
	counts map[int64]int
}

func (s *stubEntries) Remaining(_ context.Context, id int64) (int, error) {
	return s.counts[id], nil
}

func (s *stubEntries) GrantEntries(_ context.Context, id int64, n int) (int, error) {
	s.counts[id] += n
	return s.counts[id], nil
}

type stubPayouts map[int64]int64

func (s stubPayouts) PendingTotal(_ context.Context, id int64) (int64, error) {
	return s[id], nil
}

func newAccountService() (*AccountService, *stubUsers, *stubEntries) {
	users := &stubUsers{users: make(map[int64]*model.User)}
	entries := &stubEntries{counts: make(map[int64]int)}
	return NewAccountService(users, entries, stubPayouts{42: 1500}), users, entries
}

func TestEnsureUser_CreatesThenRenames(t *testing.T) {
	svc, users, _ := newAccountService()
	ctx := context.Background()

	u, created, err := svc.EnsureUser(ctx, 42, "ana")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ana", u.Username)

	u, created, err = svc.EnsureUser(ctx, 42, "ana_b")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "ana_b", u.Username)
	assert.Equal(t, []string{"ana_b"}, users.renamed)

	_, _, err = svc.EnsureUser(ctx, 42, "")
	require.NoError(t, err)
	assert.Len(t, users.renamed, 1, "an empty username never overwrites")
}

func TestEnsureUser_WrapsError(t *testing.T) {
	svc, users, _ := newAccountService()
	users.err = errors.New("connection refused")

	_, _, err := svc.EnsureUser(context.Background(), 1, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, users.err)
}

func TestProfile(t *testing.T) {
	svc, _, entries := newAccountService()
	entries.counts[42] = 3

	p, err := svc.Profile(context.Background(), 42, "ana")
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.User.TelegramID)
	assert.Equal(t, 3, p.Entries)
	assert.Equal(t, int64(1500), p.PendingPayouts)
}

func TestGrantEntries(t *testing.T) {
	svc, _, entries := newAccountService()
	ctx := context.Background()

	total, err := svc.GrantEntries(ctx, 7, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	total, err = svc.GrantEntries(ctx, 7, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Equal(t, 7, entries.counts[7])

	_, err = svc.GrantEntries(ctx, 7, 0)
	assert.Error(t, err)
}
