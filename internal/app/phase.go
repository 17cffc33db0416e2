package app

import (
	"fmt"
	"sync"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

// Phase is the stage a disbursement run is in.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseRecovering
	PhaseFiltering
	PhaseDisbursing
	PhaseCompleted
	PhaseInterrupted
	PhaseAborted
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseLoading:
		return "Loading"
	case PhaseRecovering:
		return "Recovering"
	case PhaseFiltering:
		return "Filtering"
	case PhaseDisbursing:
		return "Disbursing"
	case PhaseCompleted:
		return "Completed"
	case PhaseInterrupted:
		return "Interrupted"
	case PhaseAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseInterrupted || p == PhaseAborted
}

// transitions lists the phases reachable from each non-terminal phase.
// Every working phase may also end in Interrupted or Aborted.
var transitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseLoading},
	PhaseLoading:    {PhaseRecovering, PhaseFiltering, PhaseCompleted},
	PhaseRecovering: {PhaseFiltering, PhaseCompleted},
	PhaseFiltering:  {PhaseDisbursing, PhaseCompleted},
	PhaseDisbursing: {PhaseCompleted},
}

// PhaseObserver is called when a run changes phase.
type PhaseObserver interface {
	OnPhaseChange(previous, current Phase, reason string)
}

// Phases tracks the phase of one run and validates its transitions.
type Phases struct {
	mu       sync.RWMutex
	phase    Phase
	logger   ports.Logger
	observer PhaseObserver
}

// NewPhases creates a tracker in PhaseIdle. observer may be nil.
func NewPhases(logger ports.Logger, observer PhaseObserver) *Phases {
	return &Phases{
		phase:    PhaseIdle,
		logger:   logger,
		observer: observer,
	}
}

// Current returns the current phase.
func (p *Phases) Current() Phase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phase
}

// TransitionTo moves the run to next.
// Returns ErrInvalidTransition if next cannot follow the current phase.
func (p *Phases) TransitionTo(next Phase, reason string) error {
	p.mu.Lock()
	prev := p.phase
	if !allowed(prev, next) {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, prev, next)
	}
	p.phase = next
	p.mu.Unlock()

	// Notify outside of lock
	if p.observer != nil {
		p.observer.OnPhaseChange(prev, next, reason)
	}

	p.logger.Debug("phase transition",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
	return nil
}

func allowed(from, to Phase) bool {
	if from.Terminal() {
		return false
	}
	if from != PhaseIdle && (to == PhaseInterrupted || to == PhaseAborted) {
		return true
	}
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
