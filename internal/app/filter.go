package app

import (
	"context"
	"time"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

// Partition is the outcome of filtering the remaining work.
type Partition struct {
	// Eligible recipients, in their original order.
	Eligible []domain.Recipient
	// Ineligible recipients go to UnregisteredUsers.
	Ineligible []domain.Recipient
	// CheckFailures are recipients whose check errored; they are not retried.
	CheckFailures []domain.TransferRecord
	// Unchecked holds the tail that was not examined because the run was
	// interrupted. It is empty after a complete pass.
	Unchecked []domain.Recipient
}

// Apply folds the partition into st. RemainingWork becomes the eligible
// recipients followed by any unchecked ones, which keeps the original
// order.
func (p Partition) Apply(st *domain.BatchState) {
	remaining := make([]domain.Recipient, 0, len(p.Eligible)+len(p.Unchecked))
	remaining = append(remaining, p.Eligible...)
	remaining = append(remaining, p.Unchecked...)
	st.RemainingWork = remaining
	st.UnregisteredUsers = append(st.UnregisteredUsers, p.Ineligible...)
	st.Failed = append(st.Failed, p.CheckFailures...)
}

// Filter splits remaining work by recipient eligibility.
type Filter struct {
	checker ports.EligibilityChecker
	logger  ports.Logger
	now     func() time.Time
}

// NewFilter creates a filter backed by checker.
func NewFilter(checker ports.EligibilityChecker, logger ports.Logger) *Filter {
	return &Filter{checker: checker, logger: logger, now: time.Now}
}

// Partition checks each recipient in order. It has no side effects besides
// the checks, so it can be repeated on resume.
//
// If ctx is cancelled, the recipient being checked and everything after it
// are returned in Unchecked together with domain.ErrInterrupted.
func (f *Filter) Partition(ctx context.Context, remaining []domain.Recipient) (Partition, error) {
	p := Partition{
		Eligible:      []domain.Recipient{},
		Ineligible:    []domain.Recipient{},
		CheckFailures: []domain.TransferRecord{},
		Unchecked:     []domain.Recipient{},
	}

	for i, r := range remaining {
		if ctx.Err() != nil {
			p.Unchecked = append(p.Unchecked, remaining[i:]...)
			return p, domain.ErrInterrupted
		}

		ok, err := f.checker.IsEligible(ctx, r.Address)
		switch {
		case err != nil && ctx.Err() != nil:
			p.Unchecked = append(p.Unchecked, remaining[i:]...)
			return p, domain.ErrInterrupted
		case err != nil:
			f.logger.Warn("registration check failed",
				ports.String("address", r.Address),
				ports.Err(err),
			)
			p.CheckFailures = append(p.CheckFailures,
				domain.Failed(r, "registration check failed: "+err.Error(), f.now()))
		case ok:
			p.Eligible = append(p.Eligible, r)
		default:
			f.logger.Debug("recipient not registered", ports.String("address", r.Address))
			p.Ineligible = append(p.Ineligible, r)
		}
	}
	return p, nil
}
