package app

import (
	"context"
	"time"

	"github.com/bft-labs/dropship/internal/domain"
)

// DefaultPause is the wait between consecutive transfers.
const DefaultPause = 2 * time.Second

// Pacer spaces consecutive transfers and is the point where a run
// observes cancellation.
type Pacer struct {
	pause time.Duration
}

// NewPacer creates a pacer that waits pause between transfers.
func NewPacer(pause time.Duration) *Pacer {
	return &Pacer{pause: pause}
}

// Pace waits for the configured pause.
// It returns domain.ErrInterrupted if ctx is done before or during the wait.
func (p *Pacer) Pace(ctx context.Context) error {
	if ctx.Err() != nil {
		return domain.ErrInterrupted
	}
	if p.pause <= 0 {
		return nil
	}

	timer := time.NewTimer(p.pause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return domain.ErrInterrupted
	case <-timer.C:
		return nil
	}
}
