package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avandelay/sheetspend/internal/authflow"
	"github.com/avandelay/sheetspend/internal/credentials"
)

func newLoginCmd() *cobra.Command {
	var (
		clientSecret    string
		credentialFile  string
		callbackAddr    string
		callbackTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize access to Google Sheets interactively",
		Long: `Run the browser-based Google authorization flow and store the obtained
credential on disk. Afterwards the MCP server can run with
--non-interactive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(clientSecret, credentialFile, callbackAddr, callbackTimeout)
		},
	}

	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "Path to the Google OAuth client secret JSON. Can also use SHEETSPEND_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&credentialFile, "credential-file", "", "Path to store the credential (default: per-user config directory)")
	cmd.Flags().StringVar(&callbackAddr, "callback-addr", "", "Loopback address for the OAuth redirect (default: 127.0.0.1 with an ephemeral port)")
	cmd.Flags().DurationVar(&callbackTimeout, "callback-timeout", 0, "How long to wait for the OAuth redirect (default: 5m)")

	return cmd
}

func runLogin(clientSecret, credentialFile, callbackAddr string, callbackTimeout time.Duration) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if clientSecret == "" {
		clientSecret = os.Getenv("SHEETSPEND_CLIENT_SECRET")
	}
	if clientSecret == "" {
		return fmt.Errorf("--client-secret (or SHEETSPEND_CLIENT_SECRET) is required")
	}

	conf, err := credentials.LoadClientConfig(clientSecret)
	if err != nil {
		return fmt.Errorf("failed to load client secret: %w", err)
	}

	if credentialFile == "" {
		credentialFile, err = credentials.DefaultPath()
		if err != nil {
			return fmt.Errorf("failed to resolve credential path: %w", err)
		}
	}
	store := credentials.NewStore(credentialFile)

	flow := authflow.New(authflow.Options{
		ListenAddr:      callbackAddr,
		CallbackTimeout: callbackTimeout,
		Notify: func(authURL string) {
			fmt.Println("Open this URL in your browser to authorize access:")
			fmt.Println()
			fmt.Printf("  %s\n", authURL)
			fmt.Println()
			fmt.Println("Waiting for the redirect...")
		},
	})

	tok, err := flow.Run(ctx, conf)
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	if err := store.Save(credentials.FromToken(tok, "")); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	fmt.Printf("Authorized. Credential stored at %s\n", store.Path())
	return nil
}
