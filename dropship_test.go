package dropship_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/dropship"
)

const (
	token = "0x9999999999999999999999999999999999999999"
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
	addrC = "0x3333333333333333333333333333333333333333"
)

// gatewayServer is an in-memory signing gateway.
type gatewayServer struct {
	mu                 sync.Mutex
	registered         map[string]bool
	senderUnregistered bool
	transfers          []string
	onTransfer         func(n int)
}

func newGatewayServer(t *testing.T, registered ...string) (*gatewayServer, *httptest.Server) {
	g := &gatewayServer{registered: map[string]bool{}}
	for _, a := range registered {
		g.registered[a] = true
	}
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return g, srv
}

func (g *gatewayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reply := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	switch {
	case r.URL.Path == "/v1/balance":
		reply(map[string]string{"balance": "100"})
	case r.URL.Path == "/v1/registrations/self":
		reply(map[string]bool{"registered": !g.senderUnregistered})
	case strings.HasPrefix(r.URL.Path, "/v1/registrations/"):
		addr := strings.TrimPrefix(r.URL.Path, "/v1/registrations/")
		reply(map[string]bool{"registered": g.registered[addr]})
	case r.URL.Path == "/v1/auditor-key":
		reply(map[string][]string{"key": {"k1", "k2"}})
	case r.URL.Path == "/v1/transfers" && r.Method == http.MethodPost:
		var body struct {
			To string `json:"to"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.transfers = append(g.transfers, body.To)
		if g.onTransfer != nil {
			g.onTransfer(len(g.transfers))
		}
		reply(map[string]string{"tx_id": fmt.Sprintf("0xtx%d", len(g.transfers))})
	case strings.HasPrefix(r.URL.Path, "/v1/transactions/"):
		reply(map[string]any{"status": "confirmed", "confirmations": 3})
	default:
		http.NotFound(w, r)
	}
}

func (g *gatewayServer) sent() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.transfers...)
}

func writeList(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drop.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func testConfig(src, url string) dropship.Config {
	cfg := dropship.DefaultConfig()
	cfg.RecipientsFile = src
	cfg.TokenAddress = token
	cfg.GatewayURL = url
	cfg.Pause = 0
	cfg.ConfirmPoll = 10 * time.Millisecond
	return cfg
}

type phaseRecorder struct {
	mu     sync.Mutex
	phases []dropship.Phase
}

func (p *phaseRecorder) OnPhaseChange(prev, cur dropship.Phase, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phases = append(p.phases, cur)
}

func TestRun_CSVStore(t *testing.T) {
	gw, srv := newGatewayServer(t, addrA, addrC)
	src := writeList(t, addrA+",1.5", addrB+",2", addrC+",0.25")
	rec := &phaseRecorder{}

	report, err := dropship.Run(context.Background(), testConfig(src, srv.URL),
		dropship.WithPhaseObserver(rec))
	require.NoError(t, err)

	assert.Equal(t, dropship.PhaseCompleted, report.Phase)
	assert.Equal(t, dropship.Summary{Succeeded: 2, Unregistered: 1}, report.Summary)
	assert.True(t, report.Bootstrapped)
	require.NotNil(t, report.FinalBalance)
	assert.Equal(t, "100", report.FinalBalance.String())
	assert.Equal(t, []string{addrA, addrC}, gw.sent())
	assert.Equal(t, []dropship.Phase{
		dropship.PhaseLoading,
		dropship.PhaseFiltering,
		dropship.PhaseDisbursing,
		dropship.PhaseCompleted,
	}, rec.phases)

	succeeded, err := os.ReadFile(filepath.Join(report.Dir, "transfer_succeeded.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(succeeded), addrA)
	assert.Contains(t, string(succeeded), "0xtx2")

	// A second run finds nothing left to send.
	report, err = dropship.Run(context.Background(), testConfig(src, srv.URL))
	require.NoError(t, err)
	assert.False(t, report.Bootstrapped)
	assert.Len(t, gw.sent(), 2)
}

func TestRun_SQLiteStore(t *testing.T) {
	gw, srv := newGatewayServer(t, addrA, addrB)
	src := writeList(t, addrA+",1", addrB+",2")

	cfg := testConfig(src, srv.URL)
	cfg.Store = "sqlite"

	report, err := dropship.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, dropship.Summary{Succeeded: 2}, report.Summary)
	assert.Equal(t, []string{addrA, addrB}, gw.sent())
	assert.FileExists(t, filepath.Join(report.Dir, "state.db"))
}

func TestRun_DryRunSendsNothing(t *testing.T) {
	gw, srv := newGatewayServer(t, addrA)
	src := writeList(t, addrA+",1", addrB+",2")

	cfg := testConfig(src, srv.URL)
	cfg.DryRun = true

	report, err := dropship.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, dropship.Summary{Unregistered: 1, Remaining: 1}, report.Summary)
	assert.Empty(t, gw.sent())
}

func TestRun_StopFile(t *testing.T) {
	gw, srv := newGatewayServer(t, addrA, addrB)
	src := writeList(t, addrA+",1", addrB+",2")

	cfg := testConfig(src, srv.URL)
	cfg.Pause = time.Second

	d, err := dropship.New(cfg)
	require.NoError(t, err)
	defer d.Close()

	stopPath := filepath.Join(d.Dir(), "STOP")
	gw.onTransfer = func(n int) {
		if n == 1 {
			_ = os.WriteFile(stopPath, nil, 0o644)
		}
	}

	report, err := d.Run(context.Background())
	require.ErrorIs(t, err, dropship.ErrInterrupted)
	assert.Equal(t, dropship.PhaseInterrupted, report.Phase)
	assert.Equal(t, dropship.Summary{Succeeded: 1, Remaining: 1}, report.Summary)

	// The next run clears the stale stop file and finishes the list.
	gw.mu.Lock()
	gw.onTransfer = nil
	gw.mu.Unlock()
	cfg.Pause = 0
	report, err = dropship.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, dropship.Summary{Succeeded: 2}, report.Summary)
	assert.Equal(t, []string{addrA, addrB}, gw.sent())
	assert.NoFileExists(t, stopPath)
}

func TestRun_CancelledContext(t *testing.T) {
	gw, srv := newGatewayServer(t, addrA, addrB)
	src := writeList(t, addrA+",1", addrB+",2")

	cfg := testConfig(src, srv.URL)
	cfg.StopFile = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := dropship.Run(ctx, cfg)
	require.ErrorIs(t, err, dropship.ErrInterrupted)
	assert.Equal(t, dropship.PhaseInterrupted, report.Phase)
	assert.Empty(t, gw.sent())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := dropship.DefaultConfig()
	_, err := dropship.New(cfg)
	require.ErrorIs(t, err, dropship.ErrInvalidConfig)
}

func TestNew_MissingRecipientsFile(t *testing.T) {
	_, srv := newGatewayServer(t)
	dir := t.TempDir()

	for _, store := range []string{"csv", "sqlite"} {
		t.Run(store, func(t *testing.T) {
			cfg := testConfig(filepath.Join(dir, "typo.csv"), srv.URL)
			cfg.Store = store
			_, err := dropship.New(cfg)
			require.ErrorIs(t, err, os.ErrNotExist)
			assert.NoDirExists(t, filepath.Join(dir, "typo_airdrop_state"))
		})
	}
}

func TestRun_SenderNotRegistered(t *testing.T) {
	gw, srv := newGatewayServer(t, addrA)
	gw.senderUnregistered = true
	src := writeList(t, addrA+",1")

	_, err := dropship.Run(context.Background(), testConfig(src, srv.URL))
	require.ErrorIs(t, err, dropship.ErrSenderNotRegistered)
	assert.Empty(t, gw.sent())
}

func TestBalance(t *testing.T) {
	gw, srv := newGatewayServer(t)

	cfg := testConfig("", srv.URL)
	status, err := dropship.Balance(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, token, status.Token)
	assert.Equal(t, "100", status.Balance.String())
	require.NotNil(t, status.Registered)
	assert.True(t, *status.Registered)

	gw.mu.Lock()
	gw.senderUnregistered = true
	gw.mu.Unlock()
	status, err = dropship.Balance(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, status.Registered)
	assert.False(t, *status.Registered)
}

func TestBalance_RequiresToken(t *testing.T) {
	cfg := dropship.DefaultConfig()
	_, err := dropship.Balance(context.Background(), cfg)
	require.ErrorIs(t, err, dropship.ErrInvalidConfig)
}

func TestRun_InsufficientBalance(t *testing.T) {
	gw, srv := newGatewayServer(t, addrA)
	src := writeList(t, addrA+",250")

	_, err := dropship.Run(context.Background(), testConfig(src, srv.URL))
	require.ErrorIs(t, err, dropship.ErrInsufficientBalance)
	assert.Empty(t, gw.sent())
}
