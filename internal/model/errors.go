package model

import "errors"

// Error kinds. Every error returned by the engine matches exactly one of
// these through errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrStateConflict = errors.New("state conflict")
	ErrInsufficient  = errors.New("insufficient resource")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

var (
	ErrMissingField     = newError(ErrValidation, "missing fields")
	ErrInvalidQuantity  = newError(ErrValidation, "quantity must be positive")
	ErrInvalidDirection = newError(ErrValidation, "direction must be either BUY or SELL")
	ErrInvalidSymbol    = newError(ErrValidation, "invalid stock symbol")
	ErrInvalidDuration  = newError(ErrValidation, "duration must be positive")
	ErrInvalidCoins     = newError(ErrValidation, "per user coins must be positive")
	ErrInvalidBucket    = newError(ErrValidation, "invalid candle frequency")

	ErrUnknownUser        = newError(ErrNotFound, "user not found")
	ErrUnknownCreator     = newError(ErrNotFound, "creator must be a registered user")
	ErrUnknownSession     = newError(ErrNotFound, "group not found")
	ErrUnknownInstrument  = newError(ErrNotFound, "stock not found")
	ErrNotMember          = newError(ErrNotFound, "user has not joined this group")
	ErrInvalidCredentials = newError(ErrNotFound, "invalid credentials")

	ErrDuplicatePhone    = newError(ErrStateConflict, "user with this phone number already exists")
	ErrDuplicateID       = newError(ErrStateConflict, "identifier already in use")
	ErrInvalidTransition = newError(ErrStateConflict, "invalid session state transition")
	ErrSessionNotActive  = newError(ErrStateConflict, "session is not active")
	ErrSessionNotStarted = newError(ErrStateConflict, "session is not started")

	ErrInsufficientFunds = newError(ErrInsufficient, "insufficient margin")
	// ErrInsufficientPosition also covers a SELL with no open position at
	// all: holding zero shares is the limiting case of holding too few.
	ErrInsufficientPosition = newError(ErrInsufficient, "insufficient stock to sell")
)
