package sheets

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenExpired indicates the Sheets API rejected the access token.
	// The caller should acquire a fresh token and retry the call once.
	ErrTokenExpired = errors.New("access token rejected by the Sheets API")

	// ErrUnavailable indicates a transient failure that persisted through
	// all retry attempts.
	ErrUnavailable = errors.New("Sheets API unavailable")

	// ErrNoConversionRate indicates the spreadsheet has no usable
	// conversion sheet, so home-currency conversion is not possible.
	ErrNoConversionRate = errors.New("no conversion rate available")
)

// RemoteError is a non-retryable rejection from the Sheets API, preserving
// the provider's status code and message.
type RemoteError struct {
	StatusCode int
	Reason     string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("Sheets API rejected the request: %d %s: %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("Sheets API rejected the request: %d: %s", e.StatusCode, e.Message)
}
