package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	sheets "google.golang.org/api/sheets/v4"
)

// ErrNotFound is returned by Load when no usable credential exists on disk.
// Corrupt or unreadable files are reported the same way: re-running the
// consent flow always recovers, so there is no separate fatal path.
var ErrNotFound = errors.New("no stored credential")

const (
	credentialFileMode = 0600
	credentialDirMode  = 0700
)

// Store reads and writes the credential file at a fixed location.
type Store struct {
	path string
}

// NewStore creates a store for the credential file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns the default credential file location under the user
// config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "sheetspend", "credential.json"), nil
}

// Path returns the credential file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the stored credential. It returns ErrNotFound when the file is
// missing, unreadable or corrupt.
func (s *Store) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, ErrNotFound
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, ErrNotFound
	}

	if cred.AccessToken == "" && cred.RefreshToken == "" {
		return nil, ErrNotFound
	}

	return &cred, nil
}

// Save writes the credential to disk, creating the parent directory if
// needed. The file is only readable by the current user.
func (s *Store) Save(cred *Credential) error {
	if cred == nil {
		return fmt.Errorf("credential is required")
	}
	if cred.AccessToken != "" && cred.Expiry.IsZero() {
		return fmt.Errorf("credential has an access token but no expiry")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), credentialDirMode); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := os.WriteFile(s.path, data, credentialFileMode); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}

	return nil
}

// Clear removes the stored credential. Missing files are not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}

// LoadClientConfig parses the operator-provided Google client secret JSON
// into an oauth2.Config with the Sheets scope.
func LoadClientConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secret file %s: %w", path, err)
	}

	conf, err := google.ConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secret file %s: %w", path, err)
	}

	return conf, nil
}
