package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/avandelay/sheetspend/internal/instrumentation"
	"github.com/avandelay/sheetspend/internal/server"
	"github.com/avandelay/sheetspend/internal/sheets"
	"github.com/avandelay/sheetspend/internal/tools/expense_tools"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var (
		debugMode       bool
		transport       string
		httpAddr        string
		clientSecret    string
		credentialFile  string
		spreadsheetID   string
		homeCurrency    string
		nonInteractive  bool
		callbackAddr    string
		callbackTimeout time.Duration
		safetyMargin    time.Duration
		maxRetries      int
		initialBackoff  time.Duration
		metricsEnabled  bool
		metricsAddr     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the expense-tracking MCP server",
		Long: `Run sheetspend as an MCP server.

By default the server communicates over stdio, which is what MCP clients
like Claude Desktop expect. With --transport streamable-http it serves
the MCP protocol over HTTP on --http-addr instead.

On the first tool call that needs Google Sheets access the server prints
a consent URL and waits for the browser redirect (unless
--non-interactive is set, in which case run 'sheetspend login' first).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.Config{
				ClientSecretPath:     clientSecret,
				CredentialPath:       credentialFile,
				DefaultSpreadsheetID: spreadsheetID,
				HomeCurrency:         homeCurrency,
				Interactive:          !nonInteractive,
				CallbackAddr:         callbackAddr,
				CallbackTimeout:      callbackTimeout,
				SafetyMargin:         safetyMargin,
				MaxRetries:           maxRetries,
				InitialBackoff:       initialBackoff,
			}
			metricsConfig := MetricsConfig{Enabled: metricsEnabled, Addr: metricsAddr}
			return runServe(transport, debugMode, httpAddr, cfg, metricsConfig)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (streamable-http transport only)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "Path to the Google OAuth client secret JSON. Can also use SHEETSPEND_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&credentialFile, "credential-file", "", "Path to the stored credential (default: per-user config directory)")
	cmd.Flags().StringVar(&spreadsheetID, "spreadsheet-id", "", "Default spreadsheet for tool calls that omit one. Can also use SHEETSPEND_SPREADSHEET_ID env var.")
	cmd.Flags().StringVar(&homeCurrency, "home-currency", "", "Home currency for converted amounts, e.g. EUR. Can also use SHEETSPEND_HOME_CURRENCY env var.")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Never start the browser consent flow; fail tool calls that need one")
	cmd.Flags().StringVar(&callbackAddr, "callback-addr", "", "Loopback address for the OAuth redirect (default: 127.0.0.1 with an ephemeral port)")
	cmd.Flags().DurationVar(&callbackTimeout, "callback-timeout", 0, "How long to wait for the OAuth redirect (default: 5m)")
	cmd.Flags().DurationVar(&safetyMargin, "token-safety-margin", 0, "Refresh access tokens this long before they expire (default: 60s)")
	cmd.Flags().IntVar(&maxRetries, "sheets-max-retries", sheets.DefaultMaxRetries, "Retries for transient Sheets API failures")
	cmd.Flags().DurationVar(&initialBackoff, "sheets-initial-backoff", sheets.DefaultInitialBackoff, "First retry delay for transient Sheets API failures")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(transport string, debugMode bool, httpAddr string, cfg server.Config, metricsConfig MetricsConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	setupLogging(debugMode, transport)
	applyServeEnv(&cfg, &metricsConfig)

	if cfg.ClientSecretPath == "" {
		return fmt.Errorf("--client-secret (or SHEETSPEND_CLIENT_SECRET) is required")
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			if transport != "stdio" {
				log.Printf("Error during instrumentation shutdown: %v", err)
			}
		}
	}()

	serverContext, err := server.NewServerContext(shutdownCtx, cfg, provider)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	health := server.NewHealthChecker(serverContext)

	// Start metrics server if enabled and not in stdio mode
	var metricsServer *server.MetricsServer
	if transport != "stdio" && metricsConfig.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(metricsConfig.Addr, provider, health)
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			log.Printf("Metrics server started on %s", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	defer func() {
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error during metrics server shutdown: %v", err)
			}
		}
		if err := serverContext.Shutdown(); err != nil && transport != "stdio" {
			log.Printf("Error during server context shutdown: %v", err)
		}
	}()

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("sheetspend", version,
		mcpserver.WithToolCapabilities(true),
	)

	if err := registerAllTools(mcpSrv, serverContext); err != nil {
		return err
	}

	switch transport {
	case "stdio":
		return runStdioServer(mcpSrv)
	case "streamable-http":
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, httpAddr, health)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", transport)
	}
}

// setupLogging routes logs to stderr so stdout stays clean for the stdio
// transport.
func setupLogging(debugMode bool, transport string) {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	if transport == "stdio" {
		log.SetOutput(os.Stderr)
	}
}

// applyServeEnv fills unset config fields from the environment.
func applyServeEnv(cfg *server.Config, metricsConfig *MetricsConfig) {
	if cfg.ClientSecretPath == "" {
		cfg.ClientSecretPath = os.Getenv("SHEETSPEND_CLIENT_SECRET")
	}
	if cfg.DefaultSpreadsheetID == "" {
		cfg.DefaultSpreadsheetID = os.Getenv("SHEETSPEND_SPREADSHEET_ID")
	}
	if cfg.HomeCurrency == "" {
		cfg.HomeCurrency = os.Getenv("SHEETSPEND_HOME_CURRENCY")
	}
	if metricsConfig.Enabled && os.Getenv("METRICS_ENABLED") == "false" {
		metricsConfig.Enabled = false
	}
	if metricsConfig.Addr == "" || metricsConfig.Addr == server.DefaultMetricsAddr {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			metricsConfig.Addr = addr
		}
	}
}

// registerAllTools registers all MCP tools
func registerAllTools(mcpSrv *mcpserver.MCPServer, ctx *server.ServerContext) error {
	dispatcher, err := ctx.Dispatcher()
	if err != nil {
		return fmt.Errorf("failed to create tool dispatcher: %w", err)
	}
	if err := expense_tools.RegisterExpenseTools(mcpSrv, dispatcher); err != nil {
		return fmt.Errorf("failed to register expense tools: %w", err)
	}
	return nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, addr string, health *server.HealthChecker) error {
	streamableSrv := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath("/mcp"),
	)

	mux := http.NewServeMux()
	mux.Handle("/mcp", streamableSrv)
	health.RegisterEndpoints(mux)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		slog.Info("starting MCP server", "transport", "streamable-http", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	}
}
