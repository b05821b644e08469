package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/avandelay/sheetspend/internal/credentials"
	"github.com/avandelay/sheetspend/internal/instrumentation"
	"github.com/avandelay/sheetspend/internal/logging"
)

// ErrReauthRequired is returned when the stored credential is unusable and
// no interactive consent flow is available in the current context. A human
// has to re-run the login flow; this is not a crash condition.
var ErrReauthRequired = errors.New("stored credential is unusable; interactive re-authentication required")

// DefaultSafetyMargin is subtracted from the token expiry when deciding
// whether the cached access token is still usable. It absorbs clock skew
// and in-flight request latency.
const DefaultSafetyMargin = 60 * time.Second

// CredentialStore is the persistence contract the manager depends on.
type CredentialStore interface {
	Load() (*credentials.Credential, error)
	Save(*credentials.Credential) error
	Clear() error
}

// AuthRunner runs one interactive authorization-code flow.
type AuthRunner interface {
	Run(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error)
}

// Options configures a Manager.
type Options struct {
	// Config is the OAuth2 client configuration. Required.
	Config *oauth2.Config

	// Store persists the credential. Required.
	Store CredentialStore

	// Flow runs the interactive consent flow. When nil the manager is
	// non-interactive and reports ErrReauthRequired instead.
	Flow AuthRunner

	// SafetyMargin defaults to DefaultSafetyMargin.
	SafetyMargin time.Duration

	// HTTPClient, when set, is used for calls to the remote token endpoint.
	HTTPClient *http.Client

	// Metrics records refresh and auth flow attempts. Optional.
	Metrics *instrumentation.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// now is overridable for tests.
	now func() time.Time
}

// Manager owns the process-wide credential and its refresh discipline.
type Manager struct {
	conf       *oauth2.Config
	store      CredentialStore
	flow       AuthRunner
	margin     time.Duration
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	now        func() time.Time

	// mu serializes the load-refresh-save cycle. Concurrent expired
	// callers block here and reuse the first caller's result.
	mu     sync.Mutex
	cached *credentials.Credential

	// baseCtx backs the oauth2.TokenSource implementation, which has no
	// context parameter of its own.
	baseCtx context.Context
}

// NewManager creates a Manager. baseCtx bounds token refreshes triggered
// through the oauth2.TokenSource interface.
func NewManager(baseCtx context.Context, opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("token: oauth2 config is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("token: credential store is required")
	}
	if opts.SafetyMargin <= 0 {
		opts.SafetyMargin = DefaultSafetyMargin
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	return &Manager{
		conf:       opts.Config,
		store:      opts.Store,
		flow:       opts.Flow,
		margin:     opts.SafetyMargin,
		httpClient: opts.HTTPClient,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        opts.now,
		baseCtx:    baseCtx,
	}, nil
}

// AccessToken returns a token that is valid for at least the safety margin.
func (m *Manager) AccessToken(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached == nil {
		cred, err := m.store.Load()
		switch {
		case err == nil:
			m.cached = cred
		case errors.Is(err, credentials.ErrNotFound):
			// First run or deliberately cleared; fall through to the flow
		default:
			return nil, fmt.Errorf("failed to load credential: %w", err)
		}
	}

	// A concurrent caller may already have refreshed while we waited on
	// the lock; the expiry check below covers both paths.
	if m.cached != nil && m.usable(m.cached) {
		return m.cached.Token(), nil
	}

	if m.cached != nil && m.cached.RefreshToken != "" {
		cred, err := m.refresh(ctx)
		if err == nil {
			return cred.Token(), nil
		}
		if !isInvalidGrant(err) {
			return nil, fmt.Errorf("token refresh failed: %w", err)
		}

		// The refresh token itself was rejected: drop the credential and
		// fall back to interactive consent.
		m.logger.Warn("refresh token rejected, clearing stored credential", logging.Error(err))
		if clearErr := m.store.Clear(); clearErr != nil {
			m.logger.Warn("failed to clear stored credential", logging.Error(clearErr))
		}
		m.cached = nil
	}

	return m.runAuthFlow(ctx)
}

// Token implements oauth2.TokenSource using the manager's base context.
func (m *Manager) Token() (*oauth2.Token, error) {
	return m.AccessToken(m.baseCtx)
}

// Invalidate drops the cached access token so the next call refreshes,
// keeping the refresh token. Used when a remote call reports an expired
// token mid-flight despite the local expiry check.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		m.cached.AccessToken = ""
	}
}

// usable reports whether the credential's access token is valid for at
// least the safety margin.
func (m *Manager) usable(cred *credentials.Credential) bool {
	if cred.AccessToken == "" {
		return false
	}
	return m.now().Before(cred.Expiry.Add(-m.margin))
}

// refresh exchanges the refresh token for a new access token and persists
// the updated credential. Callers hold m.mu.
func (m *Manager) refresh(ctx context.Context) (*credentials.Credential, error) {
	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}

	// Force the library down the refresh path by presenting the token as
	// already expired.
	stale := m.cached.Token()
	stale.Expiry = time.Unix(1, 0)

	fresh, err := m.conf.TokenSource(ctx, stale).Token()
	if err != nil {
		m.recordRefresh(ctx, instrumentation.ResultFailure)
		return nil, err
	}

	cred := credentials.FromToken(fresh, m.cached.RefreshToken)
	if err := m.store.Save(cred); err != nil {
		m.recordRefresh(ctx, instrumentation.ResultFailure)
		return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	m.cached = cred
	m.recordRefresh(ctx, instrumentation.ResultSuccess)
	m.logger.Debug("access token refreshed", "expiry", cred.Expiry)
	return cred, nil
}

// runAuthFlow obtains a brand-new credential interactively and persists
// it. Callers hold m.mu.
func (m *Manager) runAuthFlow(ctx context.Context) (*oauth2.Token, error) {
	if m.flow == nil {
		return nil, ErrReauthRequired
	}

	tok, err := m.flow.Run(ctx, m.conf)
	if err != nil {
		m.recordAuthFlow(ctx, instrumentation.ResultFailure)
		return nil, fmt.Errorf("authorization flow failed: %w", err)
	}

	cred := credentials.FromToken(tok, "")
	if err := m.store.Save(cred); err != nil {
		m.recordAuthFlow(ctx, instrumentation.ResultFailure)
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	m.cached = cred
	m.recordAuthFlow(ctx, instrumentation.ResultSuccess)
	m.logger.Info("credential acquired", logging.Status(logging.StatusSuccess))
	return cred.Token(), nil
}

func (m *Manager) recordRefresh(ctx context.Context, result string) {
	if m.metrics != nil {
		m.metrics.RecordTokenRefresh(ctx, result)
	}
}

func (m *Manager) recordAuthFlow(ctx context.Context, result string) {
	if m.metrics != nil {
		m.metrics.RecordAuthFlow(ctx, result)
	}
}

// isInvalidGrant reports whether err indicates a rejected refresh token
// (revoked, expired or otherwise unusable) rather than a transient
// transport failure.
func isInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	if retrieveErr.ErrorCode == "invalid_grant" {
		return true
	}
	if retrieveErr.Response != nil {
		code := retrieveErr.Response.StatusCode
		return code == http.StatusBadRequest || code == http.StatusUnauthorized
	}
	return false
}
