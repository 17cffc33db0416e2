// Package dropship sends a token airdrop to a list of recipients, one
// transfer at a time, and records every outcome so an interrupted run can
// be resumed without paying anyone twice.
//
// Example usage:
//
//	cfg := dropship.DefaultConfig()
//	cfg.RecipientsFile = "/drops/march.csv"
//	cfg.TokenAddress = "0x..."
//	cfg.AuthKey = "your-gateway-key"
//	report, err := dropship.Run(context.Background(), cfg)
//	if err != nil && !errors.Is(err, dropship.ErrInterrupted) {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Summary)
package dropship

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	fsAdapter "github.com/bft-labs/dropship/internal/adapters/fs"
	httpAdapter "github.com/bft-labs/dropship/internal/adapters/http"
	logAdapter "github.com/bft-labs/dropship/internal/adapters/log"
	"github.com/bft-labs/dropship/internal/adapters/sqlite"
	"github.com/bft-labs/dropship/internal/app"
	"github.com/bft-labs/dropship/internal/cliconfig"
	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

// Config holds the configuration for a disbursement.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// Re-exported types.
type (
	Report        = app.Report
	Phase         = app.Phase
	PhaseObserver = app.PhaseObserver
	Collaborators = app.Collaborators
	Summary       = domain.Summary
	Recipient     = domain.Recipient
)

// Run phases.
const (
	PhaseIdle        = app.PhaseIdle
	PhaseLoading     = app.PhaseLoading
	PhaseRecovering  = app.PhaseRecovering
	PhaseFiltering   = app.PhaseFiltering
	PhaseDisbursing  = app.PhaseDisbursing
	PhaseCompleted   = app.PhaseCompleted
	PhaseInterrupted = app.PhaseInterrupted
	PhaseAborted     = app.PhaseAborted
)

// Errors callers may check with errors.Is.
var (
	ErrInterrupted         = domain.ErrInterrupted
	ErrInsufficientBalance = domain.ErrInsufficientBalance
	ErrSenderNotRegistered = domain.ErrSenderNotRegistered
	ErrAccountBusy         = domain.ErrAccountBusy
	ErrUnresolvedAttempt   = domain.ErrUnresolvedAttempt
	ErrInvalidConfig       = domain.ErrInvalidConfig
	ErrMalformedRow        = domain.ErrMalformedRow
)

// guard is shared by every Dropship in the process so two runs for the
// same account never overlap.
var guard = app.NewAccountGuard()

// DefaultConfig returns a Config with sensible default values.
// At minimum, RecipientsFile and TokenAddress must be set.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Dropship runs one disbursement for one recipient list.
type Dropship struct {
	config Config
	store  ports.StateStore
	engine *app.Engine
	logger ports.Logger
}

// New validates cfg and wires the store and the gateway. The caller must
// Close the returned instance.
func New(cfg Config, opts ...Option) (*Dropship, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions(&http.Client{Timeout: cfg.HTTPTimeout})
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = logAdapter.NewNoopLogger()
	}

	store := o.store
	if store == nil {
		var err error
		store, err = openStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	deps := collaborators(cfg, o, logger)

	engine := app.NewEngine(app.EngineConfig{
		SourcePath:    cfg.RecipientsFile,
		DryRun:        cfg.DryRun,
		TokenAddress:  cfg.TokenAddress,
		Account:       cfg.Account,
		Confirmations: cfg.Confirmations,
		Pause:         cfg.Pause,
	}, store, deps, guard, logger, o.observer)

	return &Dropship{
		config: cfg,
		store:  store,
		engine: engine,
		logger: logger,
	}, nil
}

// collaborators returns the caller's collaborators or the HTTP gateway
// configured by cfg.
func collaborators(cfg Config, o options, logger ports.Logger) Collaborators {
	if o.collaborators != nil {
		return *o.collaborators
	}
	gw := httpAdapter.NewGateway(o.httpClient, logger, httpAdapter.GatewayConfig{
		URL:          cfg.GatewayURL,
		AuthKey:      cfg.AuthKey,
		Chain:        cfg.Chain,
		UserAgent:    o.userAgent,
		PollInterval: cfg.ConfirmPoll,
		Retries:      httpAdapter.DefaultRetries,
	})
	deps := Collaborators{
		Transferrer: gw,
		Eligibility: gw,
		Balance:     gw,
		AuditorKeys: gw,
		Sender:      gw,
	}
	if cfg.Reconcile {
		deps.Reconciler = gw
	}
	return deps
}

func openStore(cfg Config) (ports.StateStore, error) {
	switch cfg.Store {
	case cliconfig.StoreSQLite:
		st, err := sqlite.Open(context.Background(), cfg.RecipientsFile)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	default:
		st, err := fsAdapter.NewCSVStore(cfg.RecipientsFile)
		if err != nil {
			return nil, fmt.Errorf("open csv store: %w", err)
		}
		return st, nil
	}
}

// Dir returns the artifact directory for the recipient list.
func (d *Dropship) Dir() string {
	return d.store.Dir()
}

// Phase returns the phase the run is in.
func (d *Dropship) Phase() Phase {
	return d.engine.Phase()
}

// Run executes the disbursement. When stop-file watching is enabled, a
// file named STOP in Dir() ends the run at the next pause, like
// cancelling ctx does. ErrInterrupted is returned in both cases.
// A Dropship runs once; create a new one to resume.
func (d *Dropship) Run(ctx context.Context) (Report, error) {
	if !d.config.StopFile {
		return d.engine.Run(ctx)
	}

	watcher := fsAdapter.NewStopWatcher(d.store.Dir(), d.logger)
	if _, err := watcher.ClearStale(); err != nil {
		return Report{Phase: d.Phase()}, fmt.Errorf("clear stop file: %w", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	watchCtx, stopWatching := context.WithCancel(runCtx)

	var report Report
	g := new(errgroup.Group)
	g.Go(func() error {
		if err := watcher.Run(watchCtx, stop); err != nil {
			d.logger.Warn("stop file watching disabled", ports.Err(err))
		}
		return nil
	})
	g.Go(func() error {
		defer stopWatching()
		var err error
		report, err = d.engine.Run(runCtx)
		return err
	})
	err := g.Wait()

	if errors.Is(err, domain.ErrInterrupted) && ctx.Err() == nil {
		d.logger.Info("stopped by stop file", ports.String("path", watcher.Path()))
	}
	return report, err
}

// Close releases the state store.
func (d *Dropship) Close() error {
	return d.store.Close()
}

// AccountStatus is the sending account's standing for one token.
type AccountStatus struct {
	Token   string
	Balance decimal.Decimal
	// Registered is nil when no SenderRegistration is configured.
	Registered *bool
}

// Balance reports the sending account's balance of cfg.TokenAddress and
// whether the account is registered. It needs no recipient list and
// touches no state.
func Balance(ctx context.Context, cfg Config, opts ...Option) (AccountStatus, error) {
	if err := cfg.ValidateGateway(); err != nil {
		return AccountStatus{}, err
	}
	o := defaultOptions(&http.Client{Timeout: cfg.HTTPTimeout})
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = logAdapter.NewNoopLogger()
	}
	deps := collaborators(cfg, o, logger)
	if deps.Balance == nil {
		return AccountStatus{}, fmt.Errorf("%w: no balance source configured", ErrInvalidConfig)
	}

	status := AccountStatus{Token: cfg.TokenAddress}
	if deps.Sender != nil {
		ok, err := deps.Sender.SenderRegistered(ctx)
		if err != nil {
			return AccountStatus{}, err
		}
		status.Registered = &ok
	}
	bal, err := deps.Balance.Balance(ctx, cfg.TokenAddress)
	if err != nil {
		return AccountStatus{}, err
	}
	status.Balance = bal
	return status, nil
}

// Run creates a Dropship for cfg, runs it and closes it.
func Run(ctx context.Context, cfg Config, opts ...Option) (Report, error) {
	d, err := New(cfg, opts...)
	if err != nil {
		return Report{}, err
	}
	defer d.Close()
	return d.Run(ctx)
}
