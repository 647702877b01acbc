package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden access")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict")
	ErrInternalServer     = errors.New("internal server error")
	ErrValidation         = errors.New("validation failed")
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrPairingLinkExpired is the only error a pairing credential check ever
	// reports, whatever was wrong with the token.
	ErrPairingLinkExpired = errors.New("link expired, refresh the code")

	ErrExamNotFound       = fmt.Errorf("exam not found: %w", ErrNotFound)
	ErrAssignmentNotFound = fmt.Errorf("assignment not found: %w", ErrNotFound)
	ErrAlreadyAssigned    = fmt.Errorf("exam already assigned to candidate: %w", ErrConflict)
	ErrExamNotReady       = errors.New("exam is not ready")
	ErrExamHasNoQuestions = fmt.Errorf("exam has no generated questions: %w", ErrConflict)
	ErrIllegalTransition  = errors.New("illegal state transition")
	ErrExamWindowNotOpen  = fmt.Errorf("exam is scheduled for later: %w", ErrConflict)
)

// StateConflictError reports an operation that is illegal in the current state
// of a state machine. It carries the current state so callers can branch on it.
type StateConflictError struct {
	Entity  string
	Op      string
	Current string
	Kind    error
}

func NewStateConflict(entity, op, current string, kind error) *StateConflictError {
	return &StateConflictError{Entity: entity, Op: op, Current: current, Kind: kind}
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s %s in status %s", e.Op, e.Entity, e.Current)
}

func (e *StateConflictError) Unwrap() []error {
	if e.Kind == nil {
		return []error{ErrConflict}
	}
	return []error{e.Kind, ErrConflict}
}

// CurrentState returns the state carried by a StateConflictError anywhere in
// the chain of err.
func CurrentState(err error) (string, bool) {
	var sc *StateConflictError
	if errors.As(err, &sc) {
		return sc.Current, true
	}
	return "", false
}

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrPairingLinkExpired) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrConflict) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrServiceUnavailable) {
		return http.StatusServiceUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // Unique violation
			return http.StatusConflict
		}
	}

	return http.StatusInternalServerError
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
