package models

import (
	"errors"

	"github.com/mmynk/sharedledger/internal/calculator"
)

// Split errors are defined next to the split arithmetic and re-exported here
// so callers only need this package.
var (
	ErrEmptySplit          = calculator.ErrEmptySplit
	ErrInvalidWeight       = calculator.ErrInvalidWeight
	ErrParticipantNotFound = calculator.ErrParticipantNotFound
)

var (
	ErrParticipantNotInGroup = errors.New("participant is not a member of the group")
	ErrValidationFailed      = errors.New("validation failed")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrNotFound              = errors.New("not found")
	ErrParticipantReferenced = errors.New("participant is referenced by ledger records")
	ErrAlreadyMaterialized   = errors.New("occurrence already materialized")
)

// IsValidationError reports whether err is one of the caller-input errors
// that leave persisted state untouched.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptySplit) ||
		errors.Is(err, ErrInvalidWeight) ||
		errors.Is(err, ErrParticipantNotFound) ||
		errors.Is(err, ErrParticipantNotInGroup) ||
		errors.Is(err, ErrValidationFailed)
}
