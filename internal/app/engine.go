package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

// DefaultConfirmations is the confirmation depth awaited per transfer.
const DefaultConfirmations = 3

// EngineConfig contains configuration for one disbursement run.
type EngineConfig struct {
	SourcePath    string
	DryRun        bool
	TokenAddress  string
	Account       string
	Confirmations int
	Pause         time.Duration
}

// Collaborators are the external services a run depends on.
// Sender and Reconciler are optional.
type Collaborators struct {
	Transferrer ports.Transferrer
	Eligibility ports.EligibilityChecker
	Balance     ports.BalanceQuerier
	AuditorKeys ports.AuditorKeySource
	Sender      ports.SenderRegistration
	Reconciler  ports.Reconciler
}

// Report describes how a run ended.
type Report struct {
	Phase        Phase
	Summary      domain.Summary
	Dir          string
	DryRun       bool
	Bootstrapped bool
	// FinalBalance is nil when it was not queried or the query failed.
	FinalBalance *decimal.Decimal
}

// Engine drives one run: load or bootstrap, recover, filter, guard,
// disburse, report.
type Engine struct {
	config    EngineConfig
	store     ports.StateStore
	deps      Collaborators
	guard     *AccountGuard
	phases    *Phases
	filter    *Filter
	disburser *Disburser
	logger    ports.Logger
}

// NewEngine creates an engine. guard may be shared between engines to
// keep runs for one account exclusive; observer may be nil.
func NewEngine(
	config EngineConfig,
	store ports.StateStore,
	deps Collaborators,
	guard *AccountGuard,
	logger ports.Logger,
	observer PhaseObserver,
) *Engine {
	if config.Confirmations <= 0 {
		config.Confirmations = DefaultConfirmations
	}
	if guard == nil {
		guard = NewAccountGuard()
	}
	return &Engine{
		config: config,
		store:  store,
		deps:   deps,
		guard:  guard,
		phases: NewPhases(logger, observer),
		filter: NewFilter(deps.Eligibility, logger),
		disburser: NewDisburser(
			DisburserConfig{TokenAddress: config.TokenAddress, Confirmations: config.Confirmations},
			store, deps.Transferrer, NewPacer(config.Pause), logger,
		),
		logger: logger,
	}
}

// Phase returns the phase the run is in.
func (e *Engine) Phase() Phase {
	return e.phases.Current()
}

// Run executes the run. It returns domain.ErrInterrupted when ctx is
// cancelled; the state on disk is consistent in that case and a later run
// resumes from it.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	release, err := e.guard.Acquire(e.accountKey())
	if err != nil {
		return Report{Phase: e.Phase()}, err
	}
	defer release()

	report := Report{Dir: e.store.Dir(), DryRun: e.config.DryRun}
	err = e.run(ctx, &report)

	switch {
	case err == nil:
		e.transition(PhaseCompleted, "done")
	case errors.Is(err, domain.ErrInterrupted):
		e.transition(PhaseInterrupted, "cancelled")
		e.logger.Info("interrupted, progress saved; run again to resume",
			ports.String("dir", report.Dir),
			ports.Stringer("summary", report.Summary),
		)
	default:
		e.transition(PhaseAborted, err.Error())
	}
	report.Phase = e.Phase()
	return report, err
}

func (e *Engine) run(ctx context.Context, report *Report) error {
	e.transition(PhaseLoading, "start")
	st, err := e.load(ctx, report)
	if err != nil {
		return err
	}
	report.Summary = st.Summary()

	// A dry run leaves an open attempt for the next real run to resolve.
	var held *domain.Recipient
	switch {
	case st.InFlight != nil && e.config.DryRun:
		r := st.InFlight.Recipient
		held = &r
		e.logger.Warn("dry run: leaving transfer from an interrupted run unresolved",
			ports.String("address", r.Address),
			ports.String("attempt", st.InFlight.ID),
		)
	case st.InFlight != nil:
		e.transition(PhaseRecovering, "open attempt")
		if err := e.disburser.Recover(ctx, &st, e.deps.Reconciler); err != nil {
			return err
		}
		report.Summary = st.Summary()
	}

	if st.Done() {
		e.logger.Info("nothing left to send", ports.Stringer("summary", st.Summary()))
		return nil
	}

	e.transition(PhaseFiltering, "check registrations")
	e.logger.Info("checking registrations", ports.Int("recipients", len(st.RemainingWork)))
	toCheck := st.RemainingWork
	if held != nil {
		toCheck, _ = removeRecipient(toCheck, *held)
	}
	part, ferr := e.filter.Partition(ctx, toCheck)
	part.Apply(&st)
	if held != nil {
		st.RemainingWork = append([]domain.Recipient{*held}, st.RemainingWork...)
	}
	if err := e.disburser.save(ctx, &st); err != nil {
		return err
	}
	report.Summary = st.Summary()
	e.logger.Info("registration check complete", ports.Stringer("summary", st.Summary()))
	if ferr != nil {
		return ferr
	}

	if e.config.DryRun {
		e.plan(ctx, st.RemainingWork)
		return nil
	}
	if len(st.RemainingWork) == 0 {
		e.logger.Info("no eligible recipients")
		return nil
	}

	if err := e.checkSender(ctx); err != nil {
		return interrupted(ctx, err)
	}
	if err := e.checkBalance(ctx, st.RemainingWork); err != nil {
		return interrupted(ctx, err)
	}
	key, err := e.deps.AuditorKeys.AuditorKey(ctx)
	if err != nil {
		return interrupted(ctx, fmt.Errorf("fetch auditor key: %w", err))
	}

	e.transition(PhaseDisbursing, "balance covers remaining work")
	err = e.disburser.Run(ctx, &st, key)
	report.Summary = st.Summary()
	if err != nil {
		return err
	}

	e.logger.Info("disbursement complete",
		ports.Stringer("summary", st.Summary()),
		ports.String("dir", report.Dir),
	)
	if bal, err := e.deps.Balance.Balance(ctx, e.config.TokenAddress); err != nil {
		e.logger.Warn("could not read final balance", ports.Err(err))
	} else {
		report.FinalBalance = &bal
		e.logger.Info("final balance", ports.Stringer("balance", bal))
	}
	return nil
}

// load resumes saved state, or bootstraps from the source list when no
// artifact holds any data.
func (e *Engine) load(ctx context.Context, report *Report) (domain.BatchState, error) {
	st, err := e.store.Load(ctx)
	if err != nil {
		return domain.BatchState{}, fmt.Errorf("load state from %s: %w", e.store.Dir(), err)
	}

	if st.IsEmpty() {
		st, err = e.store.Bootstrap(ctx, e.config.SourcePath)
		if err != nil {
			return domain.BatchState{}, fmt.Errorf("bootstrap from %s: %w", e.config.SourcePath, err)
		}
		report.Bootstrapped = true
		e.logger.Info("starting new disbursement",
			ports.String("source", e.config.SourcePath),
			ports.Int("recipients", len(st.RemainingWork)),
			ports.String("dir", e.store.Dir()),
		)
		return st, nil
	}

	e.logger.Info("resuming disbursement",
		ports.String("dir", e.store.Dir()),
		ports.Stringer("summary", st.Summary()),
	)
	return st, nil
}

// checkSender fails with domain.ErrSenderNotRegistered when the sending
// account has not registered with the token.
func (e *Engine) checkSender(ctx context.Context) error {
	if e.deps.Sender == nil {
		return nil
	}
	ok, err := e.deps.Sender.SenderRegistered(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: register it with the token before sending", domain.ErrSenderNotRegistered)
	}
	e.logger.Debug("sending account is registered")
	return nil
}

// checkBalance fails with domain.ErrInsufficientBalance when the account
// cannot cover every remaining transfer.
func (e *Engine) checkBalance(ctx context.Context, remaining []domain.Recipient) error {
	need := domain.Total(remaining)
	bal, err := e.deps.Balance.Balance(ctx, e.config.TokenAddress)
	if err != nil {
		return fmt.Errorf("query balance: %w", err)
	}
	e.logger.Info("balance check",
		ports.Stringer("balance", bal),
		ports.Stringer("required", need),
	)
	if bal.LessThan(need) {
		return fmt.Errorf("%w: have %s, need %s", domain.ErrInsufficientBalance, bal, need)
	}
	return nil
}

// plan logs the transfers a real run would make. Nothing is sent.
func (e *Engine) plan(ctx context.Context, remaining []domain.Recipient) {
	total := domain.Total(remaining)
	for i, r := range remaining {
		e.logger.Info(fmt.Sprintf("[%d/%d] would send %s to %s", i+1, len(remaining), r.Amount, r.Address))
	}
	e.logger.Info("dry run: no transfers sent",
		ports.Int("transfers", len(remaining)),
		ports.Stringer("total", total),
	)
	if len(remaining) == 0 {
		return
	}
	if err := e.checkSender(ctx); err != nil {
		e.logger.Warn("dry run: a real run would stop here", ports.Err(err))
	}
	if e.deps.Balance == nil {
		return
	}
	bal, err := e.deps.Balance.Balance(ctx, e.config.TokenAddress)
	if err != nil {
		e.logger.Warn("dry run: could not read balance", ports.Err(err))
		return
	}
	if bal.LessThan(total) {
		e.logger.Warn("dry run: balance does not cover planned transfers",
			ports.Stringer("balance", bal),
			ports.Stringer("required", total),
		)
	}
}

// interrupted reports a pre-flight failure caused by cancellation as
// domain.ErrInterrupted.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return domain.ErrInterrupted
	}
	return err
}

func (e *Engine) accountKey() string {
	return e.config.Account + "|" + e.config.TokenAddress
}

func (e *Engine) transition(p Phase, reason string) {
	if err := e.phases.TransitionTo(p, reason); err != nil {
		e.logger.Debug("phase transition skipped", ports.Err(err))
	}
}
