package millionaire

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"millionaire-bot/internal/cache"
	"millionaire-bot/internal/game/prize"
	"millionaire-bot/internal/model"
	"millionaire-bot/internal/pkg/lock"
	"millionaire-bot/internal/pkg/timer"
	"millionaire-bot/internal/repository"
)

// fakeSessions mimics the session table, including the one-active-per-user
// index and the conditional updates. It hands out copies.
type fakeSessions struct {
	mu   sync.Mutex
	rows map[string]*model.Session
	now  func() time.Time
}

func newFakeSessions(now func() time.Time) *fakeSessions {
	return &fakeSessions{rows: make(map[string]*model.Session), now: now}
}

func clone(s *model.Session) *model.Session {
	c := *s
	if s.CurrentQuestionID != nil {
		id := *s.CurrentQuestionID
		c.CurrentQuestionID = &id
	}
	return &c
}

func (f *fakeSessions) Create(_ context.Context, s *model.Session) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.UserID == s.UserID && row.IsActive() {
			return nil, repository.ErrActiveSessionExists
		}
	}
	row := clone(s)
	row.CurrentQuestion = 1
	row.Score = 0
	row.CurrentQuestionID = nil
	row.Status = model.StatusActive
	row.StartedAt = f.now()
	row.UpdatedAt = row.StartedAt
	f.rows[row.SessionID] = row
	return clone(row), nil
}

func (f *fakeSessions) Discard(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[sessionID]; ok && row.IsActive() && !row.EntryConsumed {
		delete(f.rows, sessionID)
	}
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, sessionID string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[sessionID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return clone(row), nil
}

func (f *fakeSessions) GetActiveByUser(_ context.Context, userID int64) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.UserID == userID && row.IsActive() {
			return clone(row), nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeSessions) ListActive(_ context.Context) ([]*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Session
	for _, row := range f.rows {
		if row.IsActive() {
			out = append(out, clone(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (f *fakeSessions) MarkEntryConsumed(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	row.EntryConsumed = true
	return nil
}

func (f *fakeSessions) SetCurrentQuestionID(_ context.Context, sessionID string, questionID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[sessionID]
	if !ok || !row.IsActive() {
		return repository.ErrSessionNotActive
	}
	if questionID == nil {
		row.CurrentQuestionID = nil
	} else {
		id := *questionID
		row.CurrentQuestionID = &id
	}
	return nil
}

func (f *fakeSessions) Advance(_ context.Context, sessionID string, from int, score int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[sessionID]
	if !ok || !row.IsActive() || row.CurrentQuestion != from {
		return false, nil
	}
	row.CurrentQuestion++
	row.Score = score
	row.CurrentQuestionID = nil
	return true, nil
}

func (f *fakeSessions) MarkLifelineUsed(_ context.Context, sessionID string, lifeline model.Lifeline) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[sessionID]
	if !ok || !row.IsActive() || row.LifelineUsed(lifeline) {
		return false, nil
	}
	switch lifeline {
	case model.LifelineFiftyFifty:
		row.FiftyFiftyUsed = true
	case model.LifelineSwitch:
		row.SwitchUsed = true
		row.CurrentQuestionID = nil
	default:
		return false, fmt.Errorf("unknown lifeline %q", lifeline)
	}
	return true, nil
}

func (f *fakeSessions) Finish(_ context.Context, sessionID string, status model.SessionStatus, score int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[sessionID]
	if !ok || !row.IsActive() {
		return false, nil
	}
	now := f.now()
	row.Status = status
	row.Score = score
	row.CompletedAt = &now
	return true, nil
}

func (f *fakeSessions) CancelStale(_ context.Context, olderThan time.Time) ([]*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Session
	for _, row := range f.rows {
		if row.IsActive() && row.StartedAt.Before(olderThan) {
			row.Status = model.StatusCancelled
			out = append(out, clone(row))
		}
	}
	return out, nil
}

func (f *fakeSessions) get(t *testing.T, sessionID string) *model.Session {
	t.Helper()
	s, err := f.GetByID(context.Background(), sessionID)
	require.NoError(t, err)
	return s
}

func (f *fakeSessions) backdate(sessionID string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[sessionID].StartedAt = f.rows[sessionID].StartedAt.Add(-d)
}

type recordedGame struct {
	Score   int64
	Reached int
}

type fakeUsers struct {
	mu      sync.Mutex
	games   map[int64][]recordedGame
	streaks map[int64]int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{games: make(map[int64][]recordedGame), streaks: make(map[int64]int)}
}

func (f *fakeUsers) RecordGame(_ context.Context, userID int64, score int64, reached int) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games[userID] = append(f.games[userID], recordedGame{Score: score, Reached: reached})

	u := &model.User{TelegramID: userID}
	for _, g := range f.games[userID] {
		u.GamesPlayed++
		u.TotalWinnings += g.Score
		u.HighestQuestion = max(u.HighestQuestion, g.Reached)
	}
	return u, nil
}

func (f *fakeUsers) TouchStreak(_ context.Context, userID int64, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaks[userID]++
	return f.streaks[userID], nil
}

func (f *fakeUsers) recorded(userID int64) []recordedGame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedGame(nil), f.games[userID]...)
}

func (f *fakeUsers) streak(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaks[userID]
}

type fakePayouts struct {
	mu      sync.Mutex
	entries map[string]int64
}

func newFakePayouts() *fakePayouts {
	return &fakePayouts{entries: make(map[string]int64)}
}

func (f *fakePayouts) CreatePending(_ context.Context, _ int64, sessionID string, amount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[sessionID]; ok {
		return false, nil
	}
	f.entries[sessionID] = amount
	return true, nil
}

func (f *fakePayouts) amount(sessionID string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.entries[sessionID]
	return a, ok
}

// fakeQuestions serves perRung questions for every rung of both pools. Every
// question's correct answer is B.
type fakeQuestions struct {
	mu      sync.Mutex
	byID    map[int64]*model.Question
	asked   map[int64]int
	correct map[int64]int
}

const correctLetter = model.LetterB

func newFakeQuestions(rungs, perRung int) *fakeQuestions {
	f := &fakeQuestions{
		byID:    make(map[int64]*model.Question),
		asked:   make(map[int64]int),
		correct: make(map[int64]int),
	}
	id := int64(0)
	for _, pool := range []model.QuestionPool{model.PoolClassic, model.PoolPractice} {
		for rung := 1; rung <= rungs; rung++ {
			for i := 0; i < perRung; i++ {
				id++
				f.byID[id] = &model.Question{
					ID:             id,
					QuestionNumber: rung,
					Pool:           pool,
					Text:           fmt.Sprintf("Question %d (rung %d)?", id, rung),
					Options:        [4]string{"Alpha", "Bravo", "Charlie", "Delta"},
					Correct:        correctLetter,
				}
			}
		}
	}
	return f
}

func (f *fakeQuestions) GetByDifficulty(_ context.Context, number int, exclude []int64, pool model.QuestionPool, _ *int64) (*model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	ids := make([]int64, 0, len(f.byID))
	for id := range f.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		q := f.byID[id]
		if q.QuestionNumber == number && q.Pool == pool && !skip[id] {
			c := *q
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeQuestions) GetByID(_ context.Context, id int64) (*model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrQuestionNotFound
	}
	c := *q
	return &c, nil
}

func (f *fakeQuestions) UpdateStats(_ context.Context, id int64, correct bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked[id]++
	if correct {
		f.correct[id]++
	}
	return nil
}

func (f *fakeQuestions) remove(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
}

type fakePayments struct {
	mu      sync.Mutex
	entries map[int64]int
}

func (f *fakePayments) HasEntriesRemaining(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[userID] > 0, nil
}

func (f *fakePayments) DeductEntry(_ context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries[userID] <= 0 {
		return 0, repository.ErrNoEntries
	}
	f.entries[userID]--
	return f.entries[userID], nil
}

func (f *fakePayments) remaining(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[userID]
}

type attempt struct {
	Score    int64
	Question int
}

type fakeTournaments struct {
	mu       sync.Mutex
	statuses map[int64]*model.TournamentStatus // by tournament, for every user
	attempts []attempt
}

func (f *fakeTournaments) Status(_ context.Context, _ int64, tournamentID int64) (*model.TournamentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[tournamentID]
	if !ok {
		return nil, repository.ErrTournamentNotFound
	}
	c := *st
	return &c, nil
}

func (f *fakeTournaments) DeductToken(_ context.Context, _ int64, tournamentID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.statuses[tournamentID]
	if st == nil || st.TokensRemaining <= 0 {
		return 0, repository.ErrNoTokens
	}
	st.TokensRemaining--
	return st.TokensRemaining, nil
}

func (f *fakeTournaments) RecordAttempt(_ context.Context, _ int64, _ int64, score int64, question int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt{Score: score, Question: question})
	return nil
}

type sentMessage struct {
	To   int64
	Text string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recordingSender) SendMessage(_ context.Context, recipient int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{To: recipient, Text: text})
	return nil
}

func (r *recordingSender) messages(userID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.sent {
		if m.To == userID {
			out = append(out, m.Text)
		}
	}
	return out
}

func (r *recordingSender) last(userID int64) string {
	msgs := r.messages(userID)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (r *recordingSender) count(userID int64, substr string) int {
	n := 0
	for _, m := range r.messages(userID) {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

// testClock is a settable clock shared by the engine and fakes.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var errInjected = errors.New("injected failure")

// brokenSender fails every send.
type brokenSender struct{}

func (brokenSender) SendMessage(context.Context, int64, string) error { return errInjected }

// flakyStore wraps an ExpiryStore and fails marker writes, or marker reads for
// one session.
type flakyStore struct {
	ExpiryStore
	failArm       bool
	failMarkerFor string
}

func (f *flakyStore) ArmMarker(ctx context.Context, sessionID string, question int, deadline time.Time, ttl time.Duration) error {
	if f.failArm {
		return errInjected
	}
	return f.ExpiryStore.ArmMarker(ctx, sessionID, question, deadline, ttl)
}

func (f *flakyStore) Marker(ctx context.Context, sessionID string, question int) (time.Time, bool, error) {
	if sessionID == f.failMarkerFor {
		return time.Time{}, false, errInjected
	}
	return f.ExpiryStore.Marker(ctx, sessionID, question)
}

type harness struct {
	engine      *Engine
	sessions    *fakeSessions
	users       *fakeUsers
	payouts     *fakePayouts
	questions   *fakeQuestions
	payments    *fakePayments
	tournaments *fakeTournaments
	sender      *recordingSender
	store       *cache.Store
	mr          *miniredis.Miniredis
	timers      *timer.Registry
	clock       *testClock
}

type harnessOption func(*Dependencies)

func withRealClock() harnessOption {
	return func(d *Dependencies) { d.Now = time.Now }
}

func withConfig(fn func(*Config)) harnessOption {
	return func(d *Dependencies) { fn(&d.Config) }
}

// newHarness builds an engine over in-memory fakes and a miniredis-backed cache.
// By default the clock is manual, countdowns are long and pacing never fires on
// its own, so tests drive time and continuations explicitly.
func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		users:       newFakeUsers(),
		payouts:     newFakePayouts(),
		questions:   newFakeQuestions(15, 3),
		payments:    &fakePayments{entries: make(map[int64]int)},
		tournaments: &fakeTournaments{statuses: make(map[int64]*model.TournamentStatus)},
		sender:      &recordingSender{},
		store:       cache.New(rdb, "test"),
		mr:          mr,
		timers:      timer.NewRegistry(),
		clock:       clock,
	}

	deps := Dependencies{
		Config: Config{
			QuestionTimeout: 15 * time.Second,
			MarkerBuffer:    3 * time.Second,
			PacingDelay:     time.Hour,
			ReadyWindow:     5 * time.Minute,
			SessionTTL:      time.Hour,
		},
		Users:       h.users,
		Payouts:     h.payouts,
		Cache:       h.store,
		Questions:   h.questions,
		Payments:    h.payments,
		Tournaments: h.tournaments,
		Sender:      h.sender,
		Timers:      h.timers,
		Ladder:      prize.Reference(),
		Locks:       lock.NewUserLock(),
		Now:         clock.Now,
		Intn:        func(n int) int { return 0 },
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.sessions = newFakeSessions(deps.Now)
	deps.Sessions = h.sessions
	h.engine = New(deps)
	t.Cleanup(h.timers.Stop)
	return h
}

// restart builds a second engine over the same stores with a fresh timer
// registry, as a new process would.
func (h *harness) restart(t *testing.T) *Engine {
	t.Helper()
	timers := timer.NewRegistry()
	t.Cleanup(timers.Stop)
	return New(Dependencies{
		Config:      h.engine.cfg,
		Sessions:    h.sessions,
		Users:       h.users,
		Payouts:     h.payouts,
		Cache:       h.store,
		Questions:   h.questions,
		Payments:    h.payments,
		Tournaments: h.tournaments,
		Sender:      h.sender,
		Timers:      timers,
		Ladder:      h.engine.ladder,
		Now:         h.clock.Now,
		Intn:        h.engine.intn,
	})
}

// play starts a game of kind for userID and sends question 1.
func (h *harness) play(t *testing.T, userID int64, kind model.GameKind) *model.Session {
	t.Helper()
	ctx := context.Background()
	if kind == model.KindRegular {
		h.payments.mu.Lock()
		h.payments.entries[userID]++
		h.payments.mu.Unlock()
	}
	sess, err := h.engine.Start(ctx, StartRequest{UserID: userID, Kind: kind})
	require.NoError(t, err)
	require.NoError(t, h.engine.Ready(ctx, userID))
	return h.sessions.get(t, sess.SessionID)
}

// answer submits letter for the active session.
func (h *harness) answer(t *testing.T, userID int64, letter model.Letter) error {
	t.Helper()
	return h.engine.AnswerActive(context.Background(), userID, letter)
}

// next runs the pending pacing continuation for the session immediately.
func (h *harness) next(t *testing.T, sessionID string) {
	t.Helper()
	require.True(t, h.timers.Cancel(pacingKey(sessionID)), "no pacing continuation pending")
	s := h.sessions.get(t, sessionID)
	require.NoError(t, h.engine.continueAt(context.Background(), sessionID, s.UserID, s.CurrentQuestion))
}
