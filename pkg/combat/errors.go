package combat

import (
	"errors"
	"fmt"
)

// ErrorKind groups errors by how a caller is expected to react to them.
type ErrorKind string

const (
	// KindValidation is a user-correctable input problem (missing profile, self-targeting).
	KindValidation ErrorKind = "validation"

	// KindStateConflict means the request does not fit the current session or duel state.
	KindStateConflict ErrorKind = "state_conflict"

	// KindInsufficientAssets means the player lacks the collectibles an action requires.
	KindInsufficientAssets ErrorKind = "insufficient_assets"

	// KindPersistence wraps a failure returned by the persistence collaborator.
	KindPersistence ErrorKind = "persistence"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeInvalidPlayerID     Code = "INVALID_PLAYER_ID"
	CodePlayerNotFound      Code = "PLAYER_NOT_FOUND"
	CodeSelfTarget          Code = "SELF_TARGET"
	CodeInvalidWeights      Code = "INVALID_WEIGHTS"
	CodeInvalidAction       Code = "INVALID_ACTION"
	CodeNoEligibleEncounter Code = "NO_ELIGIBLE_ENCOUNTER"

	CodeAlreadyActive      Code = "ALREADY_ACTIVE"
	CodeNoActiveEncounter  Code = "NO_ACTIVE_ENCOUNTER"
	CodeNoActiveSession    Code = "NO_ACTIVE_SESSION"
	CodeNotYourTurn        Code = "NOT_YOUR_TURN"
	CodeNoPendingChallenge Code = "NO_PENDING_CHALLENGE"
	CodeDuplicateChallenge Code = "DUPLICATE_CHALLENGE"
	CodeDuelNotFound       Code = "DUEL_NOT_FOUND"
	CodeAlreadyInDuel      Code = "ALREADY_IN_DUEL"
	CodeOnCooldown         Code = "ON_COOLDOWN"

	CodeInsufficientAssets Code = "INSUFFICIENT_ASSETS"

	CodePersistence Code = "PERSISTENCE_FAILURE"
)

// Error is a typed rejection returned by the combat engines.
type Error struct {
	Kind    ErrorKind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so wrapped copies of a sentinel compare equal to it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of the sentinel carrying a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: fmt.Sprintf(format, args...),
		Err:     e.Err,
	}
}

func newError(kind ErrorKind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidPlayerID     = newError(KindValidation, CodeInvalidPlayerID, "player id is required")
	ErrPlayerNotFound      = newError(KindValidation, CodePlayerNotFound, "player profile not found")
	ErrSelfTarget          = newError(KindValidation, CodeSelfTarget, "cannot target yourself")
	ErrInvalidWeights      = newError(KindValidation, CodeInvalidWeights, "weights must sum to a positive total")
	ErrInvalidAction       = newError(KindValidation, CodeInvalidAction, "unknown duel action")
	ErrNoEligibleEncounter = newError(KindValidation, CodeNoEligibleEncounter, "no encounter available for this level")

	ErrAlreadyActive      = newError(KindStateConflict, CodeAlreadyActive, "a session of this kind is already active")
	ErrNoActiveEncounter  = newError(KindStateConflict, CodeNoActiveEncounter, "no active encounter")
	ErrNoActiveSession    = newError(KindStateConflict, CodeNoActiveSession, "no active session")
	ErrNotYourTurn        = newError(KindStateConflict, CodeNotYourTurn, "it is not your turn")
	ErrNoPendingChallenge = newError(KindStateConflict, CodeNoPendingChallenge, "no pending challenge")
	ErrDuplicateChallenge = newError(KindStateConflict, CodeDuplicateChallenge, "a challenge between these players is already pending")
	ErrDuelNotFound       = newError(KindStateConflict, CodeDuelNotFound, "duel not found")
	ErrAlreadyInDuel      = newError(KindStateConflict, CodeAlreadyInDuel, "player is already in a duel")
	ErrOnCooldown         = newError(KindStateConflict, CodeOnCooldown, "action is on cooldown")

	ErrInsufficientAssets = newError(KindInsufficientAssets, CodeInsufficientAssets, "at least one eidolon is required")
)

// PersistenceError wraps err as a KindPersistence failure.
func PersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    KindPersistence,
		Code:    CodePersistence,
		Message: "failed to " + op,
		Err:     err,
	}
}

// ErrPersistence is the sentinel matched by every PersistenceError.
var ErrPersistence = newError(KindPersistence, CodePersistence, "persistence failure")

// KindOf reports the ErrorKind of err, or "" when err is not a combat error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
