package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testClientSecret = `{
  "installed": {
    "client_id": "client-id.apps.googleusercontent.com",
    "client_secret": "client-secret",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["http://localhost"]
  }
}`

func newTestServerContext(t *testing.T) *ServerContext {
	t.Helper()
	dir := t.TempDir()

	secretPath := filepath.Join(dir, "client_secret.json")
	if err := os.WriteFile(secretPath, []byte(testClientSecret), 0o600); err != nil {
		t.Fatalf("failed to write client secret: %v", err)
	}

	sc, err := NewServerContext(context.Background(), Config{
		ClientSecretPath: secretPath,
		CredentialPath:   filepath.Join(dir, "credential.json"),
	}, nil)
	if err != nil {
		t.Fatalf("NewServerContext failed: %v", err)
	}
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func TestNewServerContext(t *testing.T) {
	sc := newTestServerContext(t)

	if sc.Store() == nil {
		t.Error("Store is nil")
	}
	if sc.TokenManager() == nil {
		t.Error("TokenManager is nil")
	}
	if sc.Metrics() != nil {
		t.Error("Metrics should be nil without a provider")
	}
}

func TestNewServerContextMissingClientSecret(t *testing.T) {
	_, err := NewServerContext(context.Background(), Config{
		ClientSecretPath: filepath.Join(t.TempDir(), "missing.json"),
	}, nil)
	if err == nil {
		t.Fatal("expected error for missing client secret")
	}
}

func TestSheetsClientIsCached(t *testing.T) {
	sc := newTestServerContext(t)

	first, err := sc.SheetsClient()
	if err != nil {
		t.Fatalf("SheetsClient failed: %v", err)
	}
	second, err := sc.SheetsClient()
	if err != nil {
		t.Fatalf("SheetsClient failed on second call: %v", err)
	}
	if first != second {
		t.Error("SheetsClient was constructed twice")
	}
}

func TestDispatcherIsCached(t *testing.T) {
	sc := newTestServerContext(t)

	first, err := sc.Dispatcher()
	if err != nil {
		t.Fatalf("Dispatcher failed: %v", err)
	}
	second, err := sc.Dispatcher()
	if err != nil {
		t.Fatalf("Dispatcher failed on second call: %v", err)
	}
	if first != second {
		t.Error("Dispatcher was constructed twice")
	}
}

func TestShutdown(t *testing.T) {
	sc := newTestServerContext(t)

	if sc.IsShutdown() {
		t.Fatal("fresh context reports shutdown")
	}
	if err := sc.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !sc.IsShutdown() {
		t.Error("IsShutdown = false after Shutdown")
	}
	// Second shutdown is a no-op
	if err := sc.Shutdown(); err != nil {
		t.Errorf("repeated Shutdown failed: %v", err)
	}

	select {
	case <-sc.Context().Done():
	default:
		t.Error("context was not cancelled by Shutdown")
	}
}
