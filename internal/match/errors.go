package match

import (
	"errors"
	"fmt"

	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/internal/store"
	"github.com/park285/chess-duet/pkg/chessdto"
)

var (
	ErrClosed             = errors.New("session closed")
	ErrNotParticipant     = errors.New("actor is not a participant of this session")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrWaitingForOpponent = errors.New("waiting for opponent")
	ErrModeSwitch         = errors.New("mode switch is only allowed between local modes")
	ErrSharedRestart      = errors.New("shared sessions cannot be restarted")
)

// IllegalMoveError rejects a move without mutating the session.
type IllegalMoveError struct {
	Move     string
	Reason   error
	Feedback *chessdto.MoveFeedback
}

func (e *IllegalMoveError) Error() string {
	if e.Reason == nil {
		return fmt.Sprintf("illegal move %s", e.Move)
	}
	return fmt.Sprintf("illegal move %s: %v", e.Move, e.Reason)
}

func (e *IllegalMoveError) Unwrap() error { return e.Reason }

// TerminalStateViolation rejects a mutation of a completed session.
type TerminalStateViolation struct {
	Outcome string
	Method  string
}

func (e *TerminalStateViolation) Error() string {
	return fmt.Sprintf("session is complete (%s %s)", e.Outcome, e.Method)
}

// AiUnavailableError is a notice: the AI capability failed and Move was played instead.
type AiUnavailableError struct {
	Move  string
	Cause error
}

func (e *AiUnavailableError) Error() string {
	return fmt.Sprintf("ai unavailable, played fallback %s: %v", e.Move, e.Cause)
}

func (e *AiUnavailableError) Unwrap() error { return e.Cause }

// PersistenceError is a failed store write. Local state stays authoritative.
type PersistenceError struct {
	Attempt int
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist attempt %d: %v", e.Attempt, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SyncConflictError reports that a newer remote document replaced local state.
type SyncConflictError struct {
	Local  uint64
	Remote uint64
}

func (e *SyncConflictError) Error() string {
	return fmt.Sprintf("sync conflict: local version %d replaced by remote version %d", e.Local, e.Remote)
}

func (e *SyncConflictError) Unwrap() error { return store.ErrVersionConflict }

// ToDomainError maps session errors onto the wire error form.
func ToDomainError(err error) chessdto.DomainError {
	var (
		ill  *IllegalMoveError
		term *TerminalStateViolation
		ai   *AiUnavailableError
		pe   *PersistenceError
		sc   *SyncConflictError
	)
	switch {
	case err == nil:
		return chessdto.DomainError{}
	case errors.As(err, &ill):
		code := chessdto.CodeIllegalMove
		if errors.Is(err, ErrNotYourTurn) {
			code = chessdto.CodeNotYourTurn
		}
		msg := ill.Error()
		if ill.Feedback != nil && ill.Feedback.Feedback != "" {
			msg = ill.Feedback.Feedback
		}
		return chessdto.DomainError{Code: code, Message: msg}
	case errors.As(err, &term):
		return chessdto.DomainError{Code: chessdto.CodeTerminal, Message: term.Error()}
	case errors.As(err, &ai):
		return chessdto.DomainError{Code: chessdto.CodeAIUnavailable, Message: ai.Error(), Retryable: true}
	case errors.As(err, &pe):
		return chessdto.DomainError{Code: chessdto.CodePersistence, Message: pe.Error(), Retryable: true}
	case errors.As(err, &sc):
		return chessdto.DomainError{Code: chessdto.CodeConflict, Message: sc.Error(), Retryable: true}
	case errors.Is(err, store.ErrNotFound):
		return chessdto.DomainError{Code: chessdto.CodeNotFound, Message: err.Error()}
	case errors.Is(err, rules.ErrIllegalMove), errors.Is(err, rules.ErrKingCapture), errors.Is(err, rules.ErrInvalidSquare):
		return chessdto.DomainError{Code: chessdto.CodeIllegalMove, Message: err.Error()}
	default:
		return chessdto.DomainError{Code: chessdto.CodeInternal, Message: err.Error()}
	}
}
