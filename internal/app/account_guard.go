package app

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bft-labs/dropship/internal/domain"
)

// AccountGuard allows at most one active run per sending account.
type AccountGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewAccountGuard creates an empty guard.
func NewAccountGuard() *AccountGuard {
	return &AccountGuard{held: make(map[string]struct{})}
}

// Acquire claims account. The returned release func must be called when
// the run ends; calling it more than once is harmless.
// Returns domain.ErrAccountBusy if account is already claimed.
func (g *AccountGuard) Acquire(account string) (func(), error) {
	key := strings.ToLower(account)

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountBusy, account)
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}
