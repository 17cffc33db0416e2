package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

const (
	balanceEndpoint      = "/v1/balance"
	registrationEndpoint = "/v1/registrations/"
	senderEndpoint       = registrationEndpoint + "self"
	auditorKeyEndpoint   = "/v1/auditor-key"
	transfersEndpoint    = "/v1/transfers"
	transactionEndpoint  = "/v1/transactions/"

	// DefaultPollInterval is how often AwaitConfirmation asks for status.
	DefaultPollInterval = 2 * time.Second
	// DefaultRetries bounds retries of read-only calls.
	DefaultRetries = 4
)

// Transaction states reported by the gateway.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when the gateway answers 404.
var ErrNotFound = errors.New("gateway: not found")

var errTransport = errors.New("gateway: transport")

// StatusError is a non-2xx gateway response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// GatewayConfig configures the gateway client.
type GatewayConfig struct {
	URL       string
	AuthKey   string
	Chain     string
	UserAgent string

	PollInterval   time.Duration
	Retries        int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Gateway talks to the signing gateway that owns keys, proofs and chain
// clients. It implements every collaborator port of the engine.
type Gateway struct {
	client ports.HTTPClient
	logger ports.Logger
	config GatewayConfig
}

// NewGateway creates a gateway client.
func NewGateway(client ports.HTTPClient, logger ports.Logger, config GatewayConfig) *Gateway {
	config.URL = strings.TrimRight(config.URL, "/")
	if config.UserAgent == "" {
		config.UserAgent = "dropship"
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.BackoffInitial <= 0 {
		config.BackoffInitial = DefaultBackoffInitial
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = DefaultBackoffMax
	}
	return &Gateway{client: client, logger: logger, config: config}
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

// Balance returns the sender's balance of tokenAddress.
func (g *Gateway) Balance(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	var resp balanceResponse
	path := balanceEndpoint + "?token=" + url.QueryEscape(tokenAddress)
	if err := g.getJSON(ctx, path, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("query balance: %w", err)
	}
	bal, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query balance: parse %q: %w", resp.Balance, err)
	}
	return bal, nil
}

type registrationResponse struct {
	Registered bool `json:"registered"`
}

// IsEligible reports whether address has registered with the token.
func (g *Gateway) IsEligible(ctx context.Context, address string) (bool, error) {
	var resp registrationResponse
	if err := g.getJSON(ctx, registrationEndpoint+url.PathEscape(address), &resp); err != nil {
		return false, err
	}
	return resp.Registered, nil
}

// SenderRegistered reports whether the gateway's own sending account has
// registered with the token.
func (g *Gateway) SenderRegistered(ctx context.Context) (bool, error) {
	var resp registrationResponse
	if err := g.getJSON(ctx, senderEndpoint, &resp); err != nil {
		return false, fmt.Errorf("check sender registration: %w", err)
	}
	return resp.Registered, nil
}

type auditorKeyResponse struct {
	Key []string `json:"key"`
}

// AuditorKey returns the auditor's public key.
func (g *Gateway) AuditorKey(ctx context.Context) (ports.AuditorKey, error) {
	var resp auditorKeyResponse
	if err := g.getJSON(ctx, auditorKeyEndpoint, &resp); err != nil {
		return nil, fmt.Errorf("fetch auditor key: %w", err)
	}
	if len(resp.Key) == 0 {
		return nil, fmt.Errorf("fetch auditor key: empty key")
	}
	return ports.AuditorKey(resp.Key), nil
}

type transferRequest struct {
	AttemptID  string   `json:"attempt_id"`
	To         string   `json:"to"`
	Amount     string   `json:"amount"`
	Token      string   `json:"token"`
	AuditorKey []string `json:"auditor_key"`
}

type transferResponse struct {
	TxID   string `json:"tx_id"`
	Status string `json:"status,omitempty"`
}

// Submit sends one transfer. It is never retried: a second POST could
// move funds twice.
func (g *Gateway) Submit(ctx context.Context, req ports.TransferRequest) (string, error) {
	body, err := json.Marshal(transferRequest{
		AttemptID:  req.AttemptID,
		To:         req.To,
		Amount:     req.Amount,
		Token:      req.TokenAddress,
		AuditorKey: req.AuditorKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal transfer: %w", err)
	}

	var resp transferResponse
	if err := g.doJSON(ctx, http.MethodPost, transfersEndpoint, body, &resp); err != nil {
		return "", err
	}
	if resp.TxID == "" {
		return "", fmt.Errorf("gateway returned no transaction id")
	}
	return resp.TxID, nil
}

type transactionResponse struct {
	Status        string `json:"status"`
	Confirmations int    `json:"confirmations"`
	Error         string `json:"error"`
}

// AwaitConfirmation polls the transaction until it has depth confirmations
// or fails.
func (g *Gateway) AwaitConfirmation(ctx context.Context, txID string, depth int) error {
	ticker := time.NewTicker(g.config.PollInterval)
	defer ticker.Stop()

	for {
		tx, err := g.transaction(ctx, txID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("track %s: %w", txID, err)
		}
		if err == nil {
			switch tx.Status {
			case StatusFailed:
				return fmt.Errorf("transaction %s failed: %s", txID, tx.Error)
			case StatusConfirmed:
				if tx.Confirmations >= depth {
					return nil
				}
			}
			g.logger.Debug("waiting for confirmations",
				ports.String("tx", txID),
				ports.String("status", tx.Status),
				ports.Int("confirmations", tx.Confirmations),
				ports.Int("depth", depth),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *Gateway) transaction(ctx context.Context, txID string) (transactionResponse, error) {
	var resp transactionResponse
	err := g.getJSON(ctx, transactionEndpoint+url.PathEscape(txID), &resp)
	return resp, err
}

// Reconcile looks up an attempt by its idempotency key, falling back to
// its transaction id when the gateway has no record of the key.
func (g *Gateway) Reconcile(ctx context.Context, attempt domain.Attempt) (ports.Resolution, error) {
	var resp transferResponse
	err := g.getJSON(ctx, transfersEndpoint+"/"+url.PathEscape(attempt.ID), &resp)
	switch {
	case err == nil:
		if resp.TxID == "" {
			resp.TxID = attempt.TransactionID
		}
		if resp.TxID == "" {
			return ports.Resolution{Status: ports.ResolutionNotFound}, nil
		}
		tx, err := g.transaction(ctx, resp.TxID)
		if errors.Is(err, ErrNotFound) {
			return ports.Resolution{Status: ports.ResolutionPending, TransactionID: resp.TxID}, nil
		}
		if err != nil {
			return ports.Resolution{}, fmt.Errorf("reconcile %s: %w", attempt.ID, err)
		}
		return resolution(resp.TxID, tx), nil

	case errors.Is(err, ErrNotFound):
		if attempt.TransactionID == "" {
			return ports.Resolution{Status: ports.ResolutionNotFound}, nil
		}
		// A transaction id was handed out, so the transfer may still land.
		tx, err := g.transaction(ctx, attempt.TransactionID)
		if errors.Is(err, ErrNotFound) {
			return ports.Resolution{Status: ports.ResolutionPending, TransactionID: attempt.TransactionID}, nil
		}
		if err != nil {
			return ports.Resolution{}, fmt.Errorf("reconcile %s: %w", attempt.ID, err)
		}
		return resolution(attempt.TransactionID, tx), nil

	default:
		return ports.Resolution{}, fmt.Errorf("reconcile %s: %w", attempt.ID, err)
	}
}

func resolution(txID string, tx transactionResponse) ports.Resolution {
	switch tx.Status {
	case StatusConfirmed:
		return ports.Resolution{Status: ports.ResolutionConfirmed, TransactionID: txID}
	case StatusFailed:
		return ports.Resolution{Status: ports.ResolutionFailed, TransactionID: txID, Reason: tx.Error}
	default:
		return ports.Resolution{Status: ports.ResolutionPending, TransactionID: txID}
	}
}

// getJSON performs a read-only call, retrying transient failures.
func (g *Gateway) getJSON(ctx context.Context, path string, out interface{}) error {
	b := newBackoff(g.config.BackoffInitial, g.config.BackoffMax)
	for attempt := 0; ; attempt++ {
		err := g.doJSON(ctx, http.MethodGet, path, nil, out)
		if err == nil || !retryable(err) || attempt >= g.config.Retries {
			return err
		}
		g.logger.Warn("gateway call failed, retrying",
			ports.String("path", path),
			ports.Int("attempt", attempt+1),
			ports.Duration("backoff", b.Current()),
			ports.Err(err),
		)
		if err := b.Sleep(ctx); err != nil {
			return err
		}
	}
}

func (g *Gateway) doJSON(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.config.URL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if g.config.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.AuthKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.config.UserAgent+" ("+runtime.GOOS+"/"+runtime.GOARCH+")")
	req.Header.Set("X-Dropship-Chain", g.config.Chain)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w: %w", errTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// retryable reports whether a read call may be repeated after err.
// Context cancellation is final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return errors.Is(err, errTransport)
}
