package models

import (
	"errors"
	"fmt"
)

// Per-request error taxonomy. Every ledger-mutating failure leaves state
// unchanged; callers discriminate with errors.Is.
var (
	// ErrValidation: malformed input, caller must fix the request.
	ErrValidation = errors.New("validation error")
	// ErrInvalidTransition: status guard violated.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInsufficientStock: requested quantity exceeds available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNegativeStock: mutation would drive on-hand below zero.
	ErrNegativeStock = errors.New("stock cannot go negative")
	// ErrReservationMismatch: issue/adjust against a reservation or
	// snapshot that no longer matches; caller must re-read and retry.
	ErrReservationMismatch = errors.New("reservation mismatch")
	// ErrConcurrentModification: optimistic conflict; safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification")
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func invalidTransitionErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}
