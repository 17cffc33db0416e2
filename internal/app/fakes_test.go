package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

const (
	addrA = "0xaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaA"
	addrB = "0xbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbB"
	addrC = "0xcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcC"
	addrD = "0xdDdDdDdDdDdDdDdDdDdDdDdDdDdDdDdDdDdDdDdD"
)

func recipients(pairs ...string) []domain.Recipient {
	out := make([]domain.Recipient, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.Recipient{Address: pairs[i], Amount: pairs[i+1]})
	}
	return out
}

// memStore is an in-memory ports.StateStore that checks the partition
// invariant against its source on every save.
type memStore struct {
	mu         sync.Mutex
	source     []domain.Recipient
	state      domain.BatchState
	saves      int
	bootstraps int
	violations []error
	saveErr    error
}

func newMemStore(source []domain.Recipient) *memStore {
	return &memStore{source: source}
}

func (s *memStore) Load(ctx context.Context) (domain.BatchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

func (s *memStore) Save(ctx context.Context, st domain.BatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if err := domain.CheckPartition(s.source, st); err != nil {
		s.violations = append(s.violations, err)
	}
	s.state = st.Clone()
	s.saves++
	return nil
}

func (s *memStore) Bootstrap(ctx context.Context, sourcePath string) (domain.BatchState, error) {
	st := domain.NewBatchState(s.source)
	if err := s.Save(ctx, st); err != nil {
		return domain.BatchState{}, err
	}
	s.mu.Lock()
	s.bootstraps++
	s.mu.Unlock()
	return st, nil
}

func (s *memStore) Dir() string  { return "mem" }
func (s *memStore) Close() error { return nil }

func (s *memStore) snapshot() domain.BatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// fakeGateway implements every collaborator port with scripted answers.
type fakeGateway struct {
	mu sync.Mutex

	balance      decimal.Decimal
	balanceErr   error
	ineligible   map[string]bool
	checkErr     map[string]error
	submitErr    map[string]error
	confirmErr   map[string]error
	auditorKey   ports.AuditorKey
	auditorErr   error
	onSubmit     func(req ports.TransferRequest)
	onCheck      func(address string)
	resolution   ports.Resolution
	reconcileEr  error
	unregistered bool
	senderErr    error

	checks      []string
	submits     []ports.TransferRequest
	confirms    []string
	keyCalls    int
	balanceCall int
	senderCalls int
	reconciled  []domain.Attempt
}

func newFakeGateway(balance string) *fakeGateway {
	return &fakeGateway{
		balance:    decimal.RequireFromString(balance),
		ineligible: map[string]bool{},
		checkErr:   map[string]error{},
		submitErr:  map[string]error{},
		confirmErr: map[string]error{},
		auditorKey: ports.AuditorKey{"k1", "k2"},
	}
}

func (g *fakeGateway) collaborators(withReconciler bool) Collaborators {
	c := Collaborators{
		Transferrer: g,
		Eligibility: g,
		Balance:     g,
		AuditorKeys: g,
		Sender:      g,
	}
	if withReconciler {
		c.Reconciler = g
	}
	return c
}

func (g *fakeGateway) IsEligible(ctx context.Context, address string) (bool, error) {
	if g.onCheck != nil {
		g.onCheck(address)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks = append(g.checks, address)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := g.checkErr[address]; err != nil {
		return false, err
	}
	return !g.ineligible[address], nil
}

func (g *fakeGateway) SenderRegistered(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.senderCalls++
	return !g.unregistered, g.senderErr
}

func (g *fakeGateway) Balance(ctx context.Context, token string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balanceCall++
	return g.balance, g.balanceErr
}

func (g *fakeGateway) AuditorKey(ctx context.Context) (ports.AuditorKey, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keyCalls++
	return g.auditorKey, g.auditorErr
}

func (g *fakeGateway) Submit(ctx context.Context, req ports.TransferRequest) (string, error) {
	if g.onSubmit != nil {
		g.onSubmit(req)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if ctx.Err() != nil {
		return "", errors.New("submit saw a cancelled context")
	}
	g.submits = append(g.submits, req)
	if err := g.submitErr[req.To]; err != nil {
		return "", err
	}
	return txFor(req.To), nil
}

func (g *fakeGateway) AwaitConfirmation(ctx context.Context, txID string, depth int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirms = append(g.confirms, txID)
	return g.confirmErr[txID]
}

func (g *fakeGateway) Reconcile(ctx context.Context, a domain.Attempt) (ports.Resolution, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reconciled = append(g.reconciled, a)
	return g.resolution, g.reconcileEr
}

func (g *fakeGateway) submittedTo() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.submits))
	for i, s := range g.submits {
		out[i] = s.To
	}
	return out
}

func txFor(address string) string {
	return fmt.Sprintf("0xtx%s", strings.ToLower(address[2:8]))
}

func addressesOf(records []domain.TransferRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Address
	}
	return out
}
