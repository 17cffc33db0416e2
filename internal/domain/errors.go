package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent error conditions in the dropship domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrMalformedRow is returned when a row has missing or extra fields.
	ErrMalformedRow = errors.New("dropship: malformed row")

	// ErrInvalidAddress is returned when an address is not a 0x-prefixed 20-byte hex string.
	ErrInvalidAddress = errors.New("dropship: invalid address")

	// ErrInvalidAmount is returned when an amount is not a finite positive decimal.
	ErrInvalidAmount = errors.New("dropship: invalid amount")

	// ErrInvalidTimestamp is returned when a transfer log timestamp is not ISO-8601.
	ErrInvalidTimestamp = errors.New("dropship: invalid timestamp")

	// ErrInvalidRecord is returned when a transfer record has both or neither
	// of transaction id and error reason set.
	ErrInvalidRecord = errors.New("dropship: invalid transfer record")

	// ErrInsufficientBalance is returned when the sending account cannot cover
	// the remaining work. Nothing has been transferred when it is returned.
	ErrInsufficientBalance = errors.New("dropship: insufficient balance")

	// ErrPartitionViolation is returned when a snapshot loses or duplicates recipients.
	ErrPartitionViolation = errors.New("dropship: partition invariant violated")

	// ErrInterrupted is returned when a run stops at a pacing boundary because
	// its context was cancelled. State on disk is consistent when it is returned.
	ErrInterrupted = errors.New("dropship: interrupted")

	// ErrSenderNotRegistered is returned when the sending account itself has
	// not registered with the token. Nothing has been transferred when it is
	// returned.
	ErrSenderNotRegistered = errors.New("dropship: sending account is not registered")

	// ErrAccountBusy is returned when a second disbursement worker is started
	// for an account that already has one.
	ErrAccountBusy = errors.New("dropship: account already has an active disbursement")

	// ErrUnresolvedAttempt is returned when an in-flight attempt from a previous
	// run cannot be reconciled.
	ErrUnresolvedAttempt = errors.New("dropship: unresolved in-flight attempt")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("dropship: invalid configuration")

	// ErrInvalidTransition is returned when a run is moved to a phase that
	// cannot follow its current one.
	ErrInvalidTransition = errors.New("dropship: invalid phase transition")
)

// RowKind classifies a RowError.
type RowKind int

const (
	KindMalformedRow RowKind = iota
	KindInvalidAddress
	KindInvalidAmount
	KindInvalidTimestamp
)

func (k RowKind) sentinel() error {
	switch k {
	case KindInvalidAddress:
		return ErrInvalidAddress
	case KindInvalidAmount:
		return ErrInvalidAmount
	case KindInvalidTimestamp:
		return ErrInvalidTimestamp
	default:
		return ErrMalformedRow
	}
}

// RowError reports a parse failure at a 1-based line of a tabular file.
// Value holds the raw line for malformed rows and the offending field otherwise.
type RowError struct {
	Kind  RowKind
	Line  int
	Value string
}

func (e *RowError) Error() string {
	switch e.Kind {
	case KindMalformedRow:
		return fmt.Sprintf("line %d: malformed row: %q", e.Line, e.Value)
	case KindInvalidAddress:
		return fmt.Sprintf("line %d: invalid address: %q", e.Line, e.Value)
	case KindInvalidAmount:
		return fmt.Sprintf("line %d: invalid amount: %q", e.Line, e.Value)
	default:
		return fmt.Sprintf("line %d: invalid timestamp: %q", e.Line, e.Value)
	}
}

// Is lets errors.Is match a RowError against the sentinel of its kind.
func (e *RowError) Is(target error) bool {
	return target == e.Kind.sentinel()
}
