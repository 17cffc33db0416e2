package ports

import (
	"context"

	"github.com/bft-labs/dropship/internal/domain"
)

// StateStore handles persistence of one source list's batch state.
type StateStore interface {
	// Load retrieves the last saved state.
	// Missing artifacts read as empty lists; only real read or parse
	// failures are returned as errors.
	Load(ctx context.Context) (domain.BatchState, error)

	// Save persists all lists and the in-flight marker together.
	// A crash during Save must leave either the previous or the new
	// snapshot observable, never a mix of both.
	Save(ctx context.Context, state domain.BatchState) error

	// Bootstrap parses the source list, places every recipient in
	// RemainingWork, persists that state and returns it.
	Bootstrap(ctx context.Context, sourcePath string) (domain.BatchState, error)

	// Dir returns the artifact directory backing this store.
	Dir() string

	// Close releases any resources held by the store.
	Close() error
}
