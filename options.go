package dropship

import (
	"net/http"

	"github.com/bft-labs/dropship/internal/ports"
)

// HTTPClient is the interface for making HTTP requests.
// *http.Client satisfies this interface.
type HTTPClient = ports.HTTPClient

// Logger is the interface for structured logging.
type Logger = ports.Logger

// LogField represents a structured log field.
type LogField = ports.Field

// StateStore persists the batch state of one recipient list.
type StateStore = ports.StateStore

// Collaborator ports, for callers that bring their own gateway via
// WithCollaborators.
type (
	Transferrer        = ports.Transferrer
	EligibilityChecker = ports.EligibilityChecker
	BalanceQuerier     = ports.BalanceQuerier
	AuditorKeySource   = ports.AuditorKeySource
	SenderRegistration = ports.SenderRegistration
	Reconciler         = ports.Reconciler
	TransferRequest    = ports.TransferRequest
	AuditorKey         = ports.AuditorKey
	Resolution         = ports.Resolution
)

// Option configures optional behavior of Dropship.
type Option func(*options)

// options holds the optional configuration for a Dropship instance.
type options struct {
	httpClient    ports.HTTPClient
	logger        ports.Logger
	store         ports.StateStore
	collaborators *Collaborators
	observer      PhaseObserver
	userAgent     string
}

// defaultOptions returns options with sensible defaults.
func defaultOptions(client *http.Client) options {
	return options{
		httpClient: client,
		userAgent:  "dropship",
	}
}

// WithHTTPClient sets a custom HTTP client for gateway communication.
// If not provided, a default client with the configured timeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStore replaces the store selected by Config.Store.
func WithStore(store StateStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithCollaborators replaces the HTTP gateway. Sender may be nil, which
// skips the sender registration check. Reconciler may be nil, in which
// case an interrupted transfer is recorded as failed on resume.
func WithCollaborators(c Collaborators) Option {
	return func(o *options) {
		o.collaborators = &c
	}
}

// WithPhaseObserver sets a handler called on every phase change.
// It is called synchronously from the run.
func WithPhaseObserver(observer PhaseObserver) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithUserAgent sets the User-Agent product sent to the gateway.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}
