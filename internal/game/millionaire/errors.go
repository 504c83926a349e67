package millionaire

import (
	"errors"
	"fmt"
)

// Engine errors.
var (
	ErrIneligible       = errors.New("not eligible to start a game")
	ErrContentExhausted = errors.New("no question available")
	ErrSessionIntegrity = errors.New("session has no resolvable current question")
	ErrNotActive        = errors.New("session is not active")
	ErrNoActiveSession  = errors.New("no active session")
	ErrLifelineUsed     = errors.New("lifeline already used")
	ErrNotReady         = errors.New("no game is waiting for START")
	ErrQuestionPending  = errors.New("next question is on its way")
	ErrInvalidKind      = errors.New("invalid game kind")
)

// Reason explains why a start request was rejected.
type Reason string

// Start rejection reasons.
const (
	ReasonNoEntries          Reason = "no_entries"
	ReasonTournamentNotFound Reason = "tournament_not_found"
	ReasonTournamentClosed   Reason = "tournament_closed"
	ReasonNotEnrolled        Reason = "not_enrolled"
	ReasonPaymentIncomplete  Reason = "payment_incomplete"
	ReasonNoTokens           Reason = "no_tokens"
	ReasonAlreadyActive      Reason = "already_active"
)

// IneligibleError is returned by Start when a precondition fails. It matches ErrIneligible.
type IneligibleError struct {
	Reason Reason
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrIneligible, e.Reason)
}

// Is makes errors.Is(err, ErrIneligible) hold.
func (e *IneligibleError) Is(target error) bool {
	return target == ErrIneligible
}

// Notified reports whether the engine already told the user about err.
func Notified(err error) bool {
	for _, target := range []error{
		ErrIneligible, ErrSessionIntegrity, ErrNoActiveSession,
		ErrLifelineUsed, ErrNotReady, ErrQuestionPending,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
