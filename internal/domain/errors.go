package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrProfileNotFound   = errors.New("profile not found")
	ErrUnknownGame       = errors.New("unknown game")
	ErrInvalidRankOrder  = errors.New("desired rank must be above current rank")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOrderConflict     = errors.New("order was modified concurrently")
	ErrTicketConflict    = errors.New("ticket was modified concurrently")
	ErrBoosterMismatch   = errors.New("order is assigned to another booster")
	ErrTicketClosed      = errors.New("ticket is closed")
	ErrUnauthenticated   = errors.New("authentication required")
	ErrForbidden         = errors.New("restricted access")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInternalError     = errors.New("internal server error")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Required builds a ValidationError for an empty field.
func Required(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

var (
	notFoundErrors = []error{ErrOrderNotFound, ErrTicketNotFound, ErrProfileNotFound, ErrUnknownGame}
	badInputErrors = []error{ErrInvalidRankOrder, ErrInvalidRequest}
	conflictErrors = []error{ErrOrderConflict, ErrTicketConflict, ErrInvalidTransition, ErrTicketClosed}
	accessErrors   = []error{ErrUnauthenticated, ErrForbidden, ErrBoosterMismatch}
)

// matchSentinel returns the first target found in err's chain, or nil.
func matchSentinel(err error, targets []error) error {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return matchSentinel(err, notFoundErrors) != nil
}

// IsValidationError reports whether err should be shown to the caller as bad input.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || matchSentinel(err, badInputErrors) != nil
}

// IsConflictError reports whether err is a lost race or an illegal state change.
func IsConflictError(err error) bool {
	return matchSentinel(err, conflictErrors) != nil
}

// IsAccessError reports whether err is an authentication or authorization gap.
func IsAccessError(err error) bool {
	return matchSentinel(err, accessErrors) != nil
}

// PublicError strips wrapping context from err and returns the domain error
// safe to show a caller. Anything unrecognised becomes ErrInternalError.
func PublicError(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	for _, group := range [][]error{badInputErrors, accessErrors, notFoundErrors, conflictErrors} {
		if sentinel := matchSentinel(err, group); sentinel != nil {
			return sentinel
		}
	}
	return ErrInternalError
}
