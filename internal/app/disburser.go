package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

// DisburserConfig contains configuration for the disbursement loop.
type DisburserConfig struct {
	TokenAddress  string
	Confirmations int
}

// Disburser sends one transfer at a time, persisting state around every
// transfer so an interrupted run can be resumed without paying anyone twice.
type Disburser struct {
	config      DisburserConfig
	store       ports.StateStore
	transferrer ports.Transferrer
	pacer       *Pacer
	logger      ports.Logger

	now   func() time.Time
	newID func() string
}

// NewDisburser creates a disburser with the given dependencies.
func NewDisburser(
	config DisburserConfig,
	store ports.StateStore,
	transferrer ports.Transferrer,
	pacer *Pacer,
	logger ports.Logger,
) *Disburser {
	return &Disburser{
		config:      config,
		store:       store,
		transferrer: transferrer,
		pacer:       pacer,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Run pays every recipient in st.RemainingWork in order and persists st
// after each one. It returns domain.ErrInterrupted when ctx is cancelled;
// cancellation is observed before the first transfer and at each pause
// between transfers, never in the middle of one.
func (d *Disburser) Run(ctx context.Context, st *domain.BatchState, key ports.AuditorKey) error {
	total := len(st.RemainingWork)
	for i := 0; len(st.RemainingWork) > 0; i++ {
		if i == 0 {
			if ctx.Err() != nil {
				return domain.ErrInterrupted
			}
		} else if err := d.pacer.Pace(ctx); err != nil {
			return err
		}

		if err := d.transfer(ctx, st, key, i+1, total); err != nil {
			return err
		}
	}
	return nil
}

// transfer pays the head of st.RemainingWork. Only persistence failures
// are returned; transfer failures are recorded in st.Failed.
func (d *Disburser) transfer(ctx context.Context, st *domain.BatchState, key ports.AuditorKey, n, total int) error {
	r := st.RemainingWork[0]

	attempt := domain.Attempt{
		ID:        d.newID(),
		Recipient: r,
		StartedAt: d.now().UTC().Truncate(time.Millisecond),
	}
	st.InFlight = &attempt
	if err := d.save(ctx, st); err != nil {
		return err
	}

	d.logger.Info(fmt.Sprintf("[%d/%d] sending %s to %s", n, total, r.Amount, r.Address),
		ports.String("attempt", attempt.ID),
	)

	// The transfer and its bookkeeping finish even if the run is cancelled.
	tctx := context.WithoutCancel(ctx)

	txID, err := d.transferrer.Submit(tctx, ports.TransferRequest{
		AttemptID:    attempt.ID,
		To:           r.Address,
		Amount:       r.Amount,
		TokenAddress: d.config.TokenAddress,
		AuditorKey:   key,
	})
	if err != nil {
		d.logger.Error("transfer failed", ports.String("address", r.Address), ports.Err(err))
		return d.settle(tctx, st, domain.Failed(r, "transfer failed: "+err.Error(), d.now()))
	}

	attempt.TransactionID = txID
	st.InFlight = &attempt
	if err := d.save(tctx, st); err != nil {
		return err
	}

	return d.settle(tctx, st, d.confirm(tctx, r, txID))
}

// confirm waits for txID and builds the resulting record.
func (d *Disburser) confirm(ctx context.Context, r domain.Recipient, txID string) domain.TransferRecord {
	if err := d.transferrer.AwaitConfirmation(ctx, txID, d.config.Confirmations); err != nil {
		d.logger.Error("confirmation failed",
			ports.String("address", r.Address),
			ports.String("tx", txID),
			ports.Err(err),
		)
		return domain.Failed(r, fmt.Sprintf("confirmation failed for %s: %v", txID, err), d.now())
	}
	d.logger.Info("transfer confirmed",
		ports.String("address", r.Address),
		ports.String("tx", txID),
	)
	return domain.Succeeded(r, txID, d.now())
}

// settle moves the in-flight recipient out of RemainingWork into the list
// matching rec and persists the result.
func (d *Disburser) settle(ctx context.Context, st *domain.BatchState, rec domain.TransferRecord) error {
	if st.InFlight == nil {
		return fmt.Errorf("%w: no in-flight attempt to settle", domain.ErrPartitionViolation)
	}
	remaining, ok := removeRecipient(st.RemainingWork, st.InFlight.Recipient)
	if !ok {
		return fmt.Errorf("%w: in-flight %s is not in remaining work",
			domain.ErrPartitionViolation, st.InFlight.Recipient.Address)
	}

	st.RemainingWork = remaining
	if rec.TransactionID != "" {
		st.Succeeded = append(st.Succeeded, rec)
	} else {
		st.Failed = append(st.Failed, rec)
	}
	st.InFlight = nil
	return d.save(ctx, st)
}

// Recover resolves an attempt left open by an earlier run. With a
// reconciler the attempt is looked up; without one it is recorded as
// failed and never resubmitted. A reconciler error leaves st untouched
// and returns domain.ErrUnresolvedAttempt.
func (d *Disburser) Recover(ctx context.Context, st *domain.BatchState, reconciler ports.Reconciler) error {
	if st.InFlight == nil {
		return nil
	}
	attempt := *st.InFlight
	r := attempt.Recipient

	d.logger.Warn("found transfer from an interrupted run",
		ports.String("attempt", attempt.ID),
		ports.String("address", r.Address),
		ports.String("tx", attempt.TransactionID),
	)

	if reconciler == nil {
		return d.settle(ctx, st, domain.Failed(r, unknownOutcome(attempt), d.now()))
	}

	res, err := reconciler.Reconcile(ctx, attempt)
	if err != nil {
		return fmt.Errorf("%w: %s (attempt %s): %v", domain.ErrUnresolvedAttempt, r.Address, attempt.ID, err)
	}

	d.logger.Info("reconciled transfer",
		ports.String("address", r.Address),
		ports.Stringer("status", res.Status),
		ports.String("tx", res.TransactionID),
	)

	switch res.Status {
	case ports.ResolutionConfirmed:
		txID := firstNonEmpty(res.TransactionID, attempt.TransactionID)
		return d.settle(ctx, st, domain.Succeeded(r, txID, d.now()))

	case ports.ResolutionFailed:
		reason := "transfer failed: " + firstNonEmpty(res.Reason, "rejected on chain")
		if txID := firstNonEmpty(res.TransactionID, attempt.TransactionID); txID != "" {
			reason += " (tx " + txID + ")"
		}
		return d.settle(ctx, st, domain.Failed(r, reason, d.now()))

	case ports.ResolutionPending:
		txID := firstNonEmpty(res.TransactionID, attempt.TransactionID)
		if txID == "" {
			return fmt.Errorf("%w: %s: pending without transaction id", domain.ErrUnresolvedAttempt, r.Address)
		}
		return d.settle(ctx, st, d.confirm(context.WithoutCancel(ctx), r, txID))

	default:
		// Never reached the chain: the recipient stays at its place in
		// RemainingWork and is sent again.
		st.InFlight = nil
		return d.save(ctx, st)
	}
}

// save persists st. A save that has started is never cancelled.
func (d *Disburser) save(ctx context.Context, st *domain.BatchState) error {
	if err := d.store.Save(context.WithoutCancel(ctx), *st); err != nil {
		return fmt.Errorf("save state to %s: %w", d.store.Dir(), err)
	}
	return nil
}

func unknownOutcome(a domain.Attempt) string {
	reason := "transfer outcome unknown: interrupted before the result was recorded"
	if a.TransactionID != "" {
		reason += " (tx " + a.TransactionID + ")"
	}
	return reason
}

// removeRecipient removes the first recipient matching r by address
// (case-insensitive) and amount.
func removeRecipient(rs []domain.Recipient, r domain.Recipient) ([]domain.Recipient, bool) {
	for i, x := range rs {
		if strings.EqualFold(x.Address, r.Address) && x.Amount == r.Amount {
			out := make([]domain.Recipient, 0, len(rs)-1)
			out = append(out, rs[:i]...)
			return append(out, rs[i+1:]...), true
		}
	}
	return rs, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
