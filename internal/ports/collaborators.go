package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/bft-labs/dropship/internal/domain"
)

// AuditorKey is the auditor's public parameter required by every transfer.
// It is opaque to the engine and passed through unchanged.
type AuditorKey []string

// TransferRequest carries everything the transfer primitive needs.
// AttemptID doubles as an idempotency key so a gateway can answer
// reconciliation queries for it.
type TransferRequest struct {
	AttemptID    string
	To           string
	Amount       string
	TokenAddress string
	AuditorKey   AuditorKey
}

// Transferrer submits one transfer at a time.
// Neither call is idempotent from the engine's point of view; a failed
// Submit is recorded as a failure and never retried.
type Transferrer interface {
	// Submit sends the transfer and returns its transaction id.
	Submit(ctx context.Context, req TransferRequest) (string, error)

	// AwaitConfirmation blocks until txID reaches depth confirmations.
	// It returns an error if the transaction reverts or cannot be tracked.
	AwaitConfirmation(ctx context.Context, txID string, depth int) error
}

// EligibilityChecker decides whether an address can receive transfers
// (for example whether it has registered an encryption key).
// An error means the check itself failed, which is distinct from false.
type EligibilityChecker interface {
	IsEligible(ctx context.Context, address string) (bool, error)
}

// SenderRegistration reports whether the sending account has registered
// with the token. Transfers from an unregistered account cannot succeed.
type SenderRegistration interface {
	SenderRegistered(ctx context.Context) (bool, error)
}

// BalanceQuerier reads the available balance of the sending account for
// a token, in the token's human-readable unit.
type BalanceQuerier interface {
	Balance(ctx context.Context, tokenAddress string) (decimal.Decimal, error)
}

// AuditorKeySource supplies the auditor key.
type AuditorKeySource interface {
	AuditorKey(ctx context.Context) (AuditorKey, error)
}

// ResolutionStatus is the fate of an attempt that was started in an earlier run.
type ResolutionStatus int

const (
	// ResolutionNotFound means the transfer never reached the chain; it is safe to retry.
	ResolutionNotFound ResolutionStatus = iota
	// ResolutionConfirmed means the transfer landed.
	ResolutionConfirmed
	// ResolutionFailed means the transfer reached the chain and failed.
	ResolutionFailed
	// ResolutionPending means the transfer is known but not yet final.
	ResolutionPending
)

func (s ResolutionStatus) String() string {
	switch s {
	case ResolutionNotFound:
		return "not_found"
	case ResolutionConfirmed:
		return "confirmed"
	case ResolutionFailed:
		return "failed"
	case ResolutionPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Resolution is the answer of a Reconciler.
type Resolution struct {
	Status        ResolutionStatus
	TransactionID string
	Reason        string
}

// Reconciler looks up what happened to an attempt whose outcome was never
// recorded locally. It is optional: without one, such attempts are marked
// failed instead of being resubmitted.
type Reconciler interface {
	Reconcile(ctx context.Context, attempt domain.Attempt) (Resolution, error)
}
