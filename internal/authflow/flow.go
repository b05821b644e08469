package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/avandelay/sheetspend/internal/logging"
)

var (
	// ErrTimeout is returned when no authorization callback arrives within
	// the configured wait.
	ErrTimeout = errors.New("timed out waiting for authorization callback")

	// ErrInProgress is returned when a second flow is started while one is
	// already waiting for its callback.
	ErrInProgress = errors.New("authorization flow already in progress")
)

// DefaultCallbackTimeout bounds the wait for the consent redirect.
const DefaultCallbackTimeout = 5 * time.Minute

// DefaultListenAddr binds an ephemeral loopback port.
const DefaultListenAddr = "127.0.0.1:0"

// Options configures a Flow.
type Options struct {
	// ListenAddr is the loopback address for the callback listener.
	// Defaults to DefaultListenAddr (ephemeral port).
	ListenAddr string

	// CallbackTimeout bounds the wait for the redirect. Defaults to
	// DefaultCallbackTimeout.
	CallbackTimeout time.Duration

	// Notify surfaces the consent URL to the human operator. Required.
	Notify func(authURL string)

	// HTTPClient, when set, is used for the code exchange against the
	// remote token endpoint.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Flow runs the interactive authorization-code exchange.
type Flow struct {
	listenAddr string
	timeout    time.Duration
	notify     func(authURL string)
	httpClient *http.Client
	logger     *slog.Logger
	active     atomic.Bool
}

// New creates a Flow from the given options.
func New(opts Options) *Flow {
	if opts.ListenAddr == "" {
		opts.ListenAddr = DefaultListenAddr
	}
	if opts.CallbackTimeout <= 0 {
		opts.CallbackTimeout = DefaultCallbackTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Flow{
		listenAddr: opts.ListenAddr,
		timeout:    opts.CallbackTimeout,
		notify:     opts.Notify,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}
}

// callbackResult carries the outcome of the redirect callback.
type callbackResult struct {
	code string
	err  error
}

// Run performs one complete consent flow and returns the exchanged token.
// The listener is released on every exit path, including timeout and
// cancellation.
func (f *Flow) Run(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	if f.notify == nil {
		return nil, fmt.Errorf("authflow: Notify callback is required")
	}
	if !f.active.CompareAndSwap(false, true) {
		return nil, ErrInProgress
	}
	defer f.active.Store(false)

	listener, err := net.Listen("tcp", f.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind callback listener on %s: %w", f.listenAddr, err)
	}

	// Single-use state token binds the callback to this flow
	state := uuid.NewString()

	flowConf := *conf
	flowConf.RedirectURL = fmt.Sprintf("http://%s/callback", listener.Addr().String())

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		// Only a callback carrying our state token may end the flow; a
		// stray loopback request must not abort a pending consent.
		if query.Get("state") != state {
			http.Error(w, "Invalid state parameter.", http.StatusBadRequest)
			return
		}

		if errCode := query.Get("error"); errCode != "" {
			http.Error(w, "Authorization failed. You can close this window.", http.StatusBadRequest)
			select {
			case results <- callbackResult{err: fmt.Errorf("authorization denied: %s", errCode)}:
			default:
			}
			return
		}

		code := query.Get("code")
		if code == "" {
			http.Error(w, "Missing authorization code.", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>Authorization complete. You can close this window.</p></body></html>")
		select {
		case results <- callbackResult{code: code}:
		default:
		}
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			f.logger.Warn("callback listener stopped", logging.Error(err))
		}
	}()
	defer srv.Close()

	authURL := flowConf.AuthCodeURL(state, oauth2.AccessTypeOffline)
	f.logger.Info("waiting for authorization callback",
		"redirect_url", flowConf.RedirectURL,
		"timeout", f.timeout.String())
	f.notify(authURL)

	var code string
	select {
	case result := <-results:
		if result.err != nil {
			return nil, result.err
		}
		code = result.code
	case <-time.After(f.timeout):
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	exchangeCtx := ctx
	if f.httpClient != nil {
		exchangeCtx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}

	token, err := flowConf.Exchange(exchangeCtx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	f.logger.Info("authorization complete", logging.Status(logging.StatusSuccess))
	return token, nil
}
