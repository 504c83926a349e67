package millionaire

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"millionaire-bot/internal/game/prize"
	"millionaire-bot/internal/model"
	"millionaire-bot/internal/pkg/lock"
	"millionaire-bot/internal/pkg/timer"
	"millionaire-bot/internal/repository"
)

// callbackTimeout bounds the work done by a timer or pacing callback.
const callbackTimeout = 30 * time.Second

// Config holds the engine timings.
type Config struct {
	QuestionTimeout time.Duration // per-question countdown
	MarkerBuffer    time.Duration // extra TTL on the durable marker
	PacingDelay     time.Duration // pause before the next or replacement question
	ReadyWindow     time.Duration // how long START stays valid after a game is created
	SessionTTL      time.Duration // lifetime of per-session cache entries
}

// DefaultConfig returns the reference timings.
func DefaultConfig() Config {
	return Config{
		QuestionTimeout: 15 * time.Second,
		MarkerBuffer:    3 * time.Second,
		PacingDelay:     3 * time.Second,
		ReadyWindow:     5 * time.Minute,
		SessionTTL:      time.Hour,
	}
}

// Dependencies holds all collaborators needed by the engine.
type Dependencies struct {
	Config      Config
	Sessions    SessionStore
	Users       UserStore
	Payouts     PayoutLedger
	Cache       ExpiryStore
	Questions   QuestionProvider
	Payments    PaymentProvider
	Tournaments TournamentProvider
	Sender      MessageSender
	Timers      *timer.Registry
	Ladder      *prize.Ladder
	Locks       *lock.UserLock

	// Optional; default to time.Now, rand.IntN and uuid.NewString.
	Now   func() time.Time
	Intn  func(n int) int
	NewID func() string
}

// Engine owns the session state machine.
//
// Exported methods that take a session or user expect the caller to hold that
// user's lock. Timer and pacing callbacks acquire it themselves.
type Engine struct {
	cfg         Config
	sessions    SessionStore
	users       UserStore
	payouts     PayoutLedger
	cache       ExpiryStore
	questions   QuestionProvider
	payments    PaymentProvider
	tournaments TournamentProvider
	sender      MessageSender
	timers      *timer.Registry
	ladder      *prize.Ladder
	locks       *lock.UserLock

	now   func() time.Time
	intn  func(n int) int
	newID func() string
}

// New creates an Engine.
func New(deps Dependencies) *Engine {
	e := &Engine{
		cfg:         deps.Config,
		sessions:    deps.Sessions,
		users:       deps.Users,
		payouts:     deps.Payouts,
		cache:       deps.Cache,
		questions:   deps.Questions,
		payments:    deps.Payments,
		tournaments: deps.Tournaments,
		sender:      deps.Sender,
		timers:      deps.Timers,
		ladder:      deps.Ladder,
		locks:       deps.Locks,
		now:         deps.Now,
		intn:        deps.Intn,
		newID:       deps.NewID,
	}
	if e.ladder == nil {
		e.ladder = prize.Reference()
	}
	if e.timers == nil {
		e.timers = timer.NewRegistry()
	}
	if e.locks == nil {
		e.locks = lock.NewUserLock()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.intn == nil {
		e.intn = rand.IntN
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

// Locks returns the per-user lock shared with the transport layer.
func (e *Engine) Locks() *lock.UserLock {
	return e.locks
}

// Ladder returns the prize ladder in use.
func (e *Engine) Ladder() *prize.Ladder {
	return e.ladder
}

// StartRequest describes a new game.
type StartRequest struct {
	UserID       int64
	Kind         model.GameKind
	TournamentID *int64
	Channel      model.Channel
}

// Start checks eligibility, creates the session, takes the entry cost and
// sends the mode instructions. Question 1 is released later by Ready.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*model.Session, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}
	if req.Channel == "" {
		req.Channel = model.ChannelTelegram
	}
	logger := log.With().Int64("user_id", req.UserID).Str("kind", string(req.Kind)).Logger()

	var tournament *model.TournamentStatus
	switch req.Kind {
	case model.KindRegular:
		has, err := e.payments.HasEntriesRemaining(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to check entries: %w", err)
		}
		if !has {
			return nil, e.reject(ctx, req.UserID, ReasonNoEntries)
		}
	case model.KindTournament:
		st, reason, err := e.checkTournament(ctx, req)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			return nil, e.reject(ctx, req.UserID, reason)
		}
		tournament = st
	}

	if _, err := e.sessions.GetActiveByUser(ctx, req.UserID); err == nil {
		return nil, e.reject(ctx, req.UserID, ReasonAlreadyActive)
	} else if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}

	// The insert is the authority on one active session per user; the check
	// above only spares a round trip in the common case.
	sess, err := e.sessions.Create(ctx, &model.Session{
		SessionID:    e.newID(),
		UserID:       req.UserID,
		Kind:         req.Kind,
		TournamentID: req.TournamentID,
		Channel:      req.Channel,
	})
	if err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			return nil, e.reject(ctx, req.UserID, ReasonAlreadyActive)
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	logger = logger.With().Str("session_id", sess.SessionID).Logger()

	if err := e.chargeEntry(ctx, sess, tournament); err != nil {
		if derr := e.sessions.Discard(ctx, sess.SessionID); derr != nil {
			logger.Error().Err(derr).Msg("Failed to discard session after entry charge failed")
		}
		var inel *IneligibleError
		if errors.As(err, &inel) {
			return nil, e.reject(ctx, req.UserID, inel.Reason)
		}
		return nil, err
	}

	if err := e.cache.SaveShadow(ctx, sess, e.cfg.SessionTTL); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache session shadow")
	}
	if err := e.cache.SetReady(ctx, req.UserID, sess.SessionID, e.cfg.ReadyWindow); err != nil {
		return nil, fmt.Errorf("failed to set ready flag: %w", err)
	}

	name := ""
	if tournament != nil {
		name = tournament.Tournament.Name
	}
	if err := e.sender.SendMessage(ctx, req.UserID, e.instructionsText(sess, name)); err != nil {
		return nil, fmt.Errorf("failed to send instructions: %w", err)
	}

	if req.Kind != model.KindPractice {
		if streak, err := e.users.TouchStreak(ctx, req.UserID, e.now()); err != nil {
			logger.Warn().Err(err).Msg("Failed to update daily streak")
		} else {
			logger.Debug().Int("streak", streak).Msg("Daily streak updated")
		}
	}

	gamesStarted.WithLabelValues(string(req.Kind)).Inc()
	logger.Info().Msg("Game started")
	return sess, nil
}

func (e *Engine) checkTournament(ctx context.Context, req StartRequest) (*model.TournamentStatus, Reason, error) {
	if req.TournamentID == nil {
		return nil, ReasonTournamentNotFound, nil
	}
	st, err := e.tournaments.Status(ctx, req.UserID, *req.TournamentID)
	if err != nil {
		if errors.Is(err, repository.ErrTournamentNotFound) {
			return nil, ReasonTournamentNotFound, nil
		}
		return nil, "", fmt.Errorf("failed to get tournament status: %w", err)
	}
	switch {
	case st.Tournament.Status != model.TournamentActive:
		return st, ReasonTournamentClosed, nil
	case !st.Enrolled:
		return st, ReasonNotEnrolled, nil
	case !st.PaymentComplete:
		return st, ReasonPaymentIncomplete, nil
	case st.Tournament.TokenGated && st.TokensRemaining <= 0:
		return st, ReasonNoTokens, nil
	}
	return st, "", nil
}

// chargeEntry takes the entry or token for a freshly reserved session.
// A decrement that finds nothing left is reported as an IneligibleError.
func (e *Engine) chargeEntry(ctx context.Context, sess *model.Session, st *model.TournamentStatus) error {
	switch {
	case sess.Kind == model.KindRegular:
		if _, err := e.payments.DeductEntry(ctx, sess.UserID); err != nil {
			if errors.Is(err, repository.ErrNoEntries) {
				return &IneligibleError{Reason: ReasonNoEntries}
			}
			return fmt.Errorf("failed to deduct entry: %w", err)
		}
	case sess.Kind == model.KindTournament && st != nil && st.Tournament.TokenGated:
		if _, err := e.tournaments.DeductToken(ctx, sess.UserID, *sess.TournamentID); err != nil {
			if errors.Is(err, repository.ErrNoTokens) {
				return &IneligibleError{Reason: ReasonNoTokens}
			}
			return fmt.Errorf("failed to deduct token: %w", err)
		}
	default:
		return nil
	}

	if err := e.sessions.MarkEntryConsumed(ctx, sess.SessionID); err != nil {
		// The entry is gone; keep the session so it can still be played.
		log.Error().Err(err).Str("session_id", sess.SessionID).Msg("Failed to record entry consumption")
		return nil
	}
	sess.EntryConsumed = true
	return nil
}

func (e *Engine) reject(ctx context.Context, userID int64, reason Reason) error {
	log.Info().Int64("user_id", userID).Str("reason", string(reason)).Msg("Game start rejected")
	if err := e.sender.SendMessage(ctx, userID, rejectionText(reason)); err != nil {
		return errors.Join(&IneligibleError{Reason: reason}, fmt.Errorf("failed to send rejection: %w", err))
	}
	return &IneligibleError{Reason: reason}
}

// Ready consumes the user's ready flag and sends question 1.
func (e *Engine) Ready(ctx context.Context, userID int64) error {
	sessionID, ok, err := e.cache.TakeReady(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return e.notify(ctx, userID, textNotReady, ErrNotReady)
	}

	sess, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return e.notify(ctx, userID, textNotReady, ErrNotReady)
		}
		return fmt.Errorf("failed to load session: %w", err)
	}
	if sess.UserID != userID || !sess.IsActive() || sess.CurrentQuestionID != nil {
		return e.notify(ctx, userID, textNotReady, ErrNotReady)
	}
	return e.SendQuestion(ctx, sess)
}

// ActiveSession returns the user's active session or ErrNoActiveSession.
func (e *Engine) ActiveSession(ctx context.Context, userID int64) (*model.Session, error) {
	sess, err := e.sessions.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	return sess, nil
}

// Cancel ends the user's active game without writing results.
func (e *Engine) Cancel(ctx context.Context, userID int64) error {
	sess, err := e.ActiveSession(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			return e.notify(ctx, userID, textNoActiveSession, err)
		}
		return err
	}
	return e.CompleteGame(ctx, sess, Outcome{Kind: OutcomeCancelled, Score: sess.Score})
}

// AnswerActive submits an answer for the user's active session.
func (e *Engine) AnswerActive(ctx context.Context, userID int64, letter model.Letter) error {
	sess, err := e.ActiveSession(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			return e.notify(ctx, userID, textNoActiveSession, err)
		}
		return err
	}
	return e.Answer(ctx, sess, letter)
}

// LifelineActive applies a lifeline to the user's active session.
func (e *Engine) LifelineActive(ctx context.Context, userID int64, kind model.Lifeline) error {
	sess, err := e.ActiveSession(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			return e.notify(ctx, userID, textNoActiveSession, err)
		}
		return err
	}
	return e.UseLifeline(ctx, sess, kind)
}

// notify tells the user text and returns cause.
func (e *Engine) notify(ctx context.Context, userID int64, text string, cause error) error {
	if err := e.sender.SendMessage(ctx, userID, text); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to send message: %w", err))
	}
	return cause
}

// reportFailure tells the user about an error raised outside a request.
func (e *Engine) reportFailure(ctx context.Context, userID int64, err error) {
	if err == nil || Notified(err) {
		return
	}
	if serr := e.sender.SendMessage(ctx, userID, FailureText(err)); serr != nil {
		log.Error().Err(serr).Int64("user_id", userID).Msg("Failed to send failure notice")
	}
}

// withUser runs fn under the user's lock with a fresh bounded context.
func (e *Engine) withUser(userID int64, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	e.locks.Lock(userID)
	defer e.locks.Unlock(userID)

	if err := fn(ctx); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Deferred game step failed")
		e.reportFailure(ctx, userID, err)
	}
}
