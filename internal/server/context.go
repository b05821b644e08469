package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/avandelay/sheetspend/internal/authflow"
	"github.com/avandelay/sheetspend/internal/credentials"
	"github.com/avandelay/sheetspend/internal/instrumentation"
	"github.com/avandelay/sheetspend/internal/sheets"
	"github.com/avandelay/sheetspend/internal/token"
	"github.com/avandelay/sheetspend/internal/tools/expense_tools"
)

// Config holds the operator-facing settings for the server.
type Config struct {
	// ClientSecretPath points at the Google OAuth client secret JSON.
	ClientSecretPath string

	// CredentialPath overrides where the obtained credential is stored.
	// Empty uses the per-user default location.
	CredentialPath string

	// DefaultSpreadsheetID is used when tool calls omit spreadsheet_id.
	DefaultSpreadsheetID string

	// HomeCurrency enables home-amount conversion. Empty disables it.
	HomeCurrency string

	// Interactive allows the server to run the browser consent flow when
	// no usable credential exists. When false, tools fail with a
	// re-authentication hint instead of blocking on a browser.
	Interactive bool

	// CallbackAddr is the loopback address for the consent redirect.
	CallbackAddr string
	// CallbackTimeout bounds the wait for the consent redirect.
	CallbackTimeout time.Duration

	// SafetyMargin is subtracted from token expiries when deciding
	// whether to refresh.
	SafetyMargin time.Duration

	// MaxRetries and InitialBackoff tune the Sheets retry loop.
	MaxRetries     int
	InitialBackoff time.Duration
}

// ServerContext holds the shared state of the MCP server. The Sheets
// client and dispatcher are constructed lazily on first use so the server
// can start before any credential exists.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg      Config
	store    *credentials.Store
	manager  *token.Manager
	provider *instrumentation.Provider
	logger   *slog.Logger

	mu           sync.RWMutex
	sheetsClient *sheets.Client
	dispatcher   *expense_tools.Dispatcher
	shutdown     bool
}

// NewServerContext creates the server context: it parses the client
// secret, opens the credential store, and builds the token manager. No
// network calls happen here.
func NewServerContext(ctx context.Context, cfg Config, provider *instrumentation.Provider) (*ServerContext, error) {
	oauthConf, err := credentials.LoadClientConfig(cfg.ClientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load client secret: %w", err)
	}

	credentialPath := cfg.CredentialPath
	if credentialPath == "" {
		credentialPath, err = credentials.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credential path: %w", err)
		}
	}
	store := credentials.NewStore(credentialPath)

	logger := slog.Default()
	tokenHTTPClient := newTokenHTTPClient()

	var metrics *instrumentation.Metrics
	if provider != nil {
		metrics = provider.Metrics()
	}

	var flow token.AuthRunner
	if cfg.Interactive {
		flow = authflow.New(authflow.Options{
			ListenAddr:      cfg.CallbackAddr,
			CallbackTimeout: cfg.CallbackTimeout,
			Notify: func(authURL string) {
				logger.Info("authorization required, open this URL in a browser", "url", authURL)
			},
			HTTPClient: tokenHTTPClient,
			Logger:     logger,
		})
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	manager, err := token.NewManager(shutdownCtx, token.Options{
		Config:       oauthConf,
		Store:        store,
		Flow:         flow,
		SafetyMargin: cfg.SafetyMargin,
		HTTPClient:   tokenHTTPClient,
		Metrics:      metrics,
		Logger:       logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create token manager: %w", err)
	}

	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		cfg:      cfg,
		store:    store,
		manager:  manager,
		provider: provider,
		logger:   logger,
	}, nil
}

// newTokenHTTPClient builds the HTTP client used against the OAuth token
// endpoint. Retries there are cheap and keep short network blips from
// surfacing as refresh failures.
func newTokenHTTPClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	return rc.StandardClient()
}

// Context returns the server's shutdown-scoped context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Store returns the credential store.
func (sc *ServerContext) Store() *credentials.Store {
	return sc.store
}

// TokenManager returns the token manager.
func (sc *ServerContext) TokenManager() *token.Manager {
	return sc.manager
}

// Metrics returns the metrics recorder, or nil when instrumentation is
// disabled.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	if sc.provider == nil {
		return nil
	}
	return sc.provider.Metrics()
}

// SheetsClient returns the Sheets client, creating it on first use.
func (sc *ServerContext) SheetsClient() (*sheets.Client, error) {
	sc.mu.RLock()
	client := sc.sheetsClient
	sc.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.sheetsClient != nil {
		return sc.sheetsClient, nil
	}

	client, err := sheets.NewClient(sc.ctx, sheets.Options{
		TokenSource:    sc.manager,
		Invalidator:    sc.manager,
		MaxRetries:     sc.cfg.MaxRetries,
		InitialBackoff: sc.cfg.InitialBackoff,
		Metrics:        sc.Metrics(),
		Logger:         sc.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets client: %w", err)
	}
	sc.sheetsClient = client
	return client, nil
}

// Dispatcher returns the tool dispatcher, creating it on first use.
func (sc *ServerContext) Dispatcher() (*expense_tools.Dispatcher, error) {
	sc.mu.RLock()
	dispatcher := sc.dispatcher
	sc.mu.RUnlock()
	if dispatcher != nil {
		return dispatcher, nil
	}

	client, err := sc.SheetsClient()
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.dispatcher != nil {
		return sc.dispatcher, nil
	}

	dispatcher, err = expense_tools.NewDispatcher(client, sc.manager, expense_tools.Config{
		DefaultSpreadsheetID: sc.cfg.DefaultSpreadsheetID,
		HomeCurrency:         sc.cfg.HomeCurrency,
	}, sc.Metrics(), sc.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	sc.dispatcher = dispatcher
	return dispatcher, nil
}

// IsShutdown returns whether the server context has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. Safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.cancel()
	return nil
}
