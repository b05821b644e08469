package expense_tools

import "fmt"

// FailureKind classifies why a tool invocation failed.
type FailureKind string

const (
	KindInvalidArgument FailureKind = "invalid_argument"
	KindAuthTimeout     FailureKind = "auth_timeout"
	KindAuthInProgress  FailureKind = "auth_in_progress"
	KindReauthRequired  FailureKind = "reauth_required"
	KindAuthError       FailureKind = "auth_error"
	KindRemoteRejected  FailureKind = "remote_rejected"
	KindUnavailable     FailureKind = "unavailable"
)

// Result is the outcome of one tool invocation.
type Result struct {
	OK      bool        `json:"ok"`
	Kind    FailureKind `json:"kind,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success returns a successful result carrying the tool's payload.
func Success(data interface{}) Result {
	return Result{OK: true, Data: data}
}

// Failure returns a failed result with a classified kind and a
// human-readable message.
func Failure(kind FailureKind, format string, args ...interface{}) Result {
	return Result{OK: false, Kind: kind, Message: fmt.Sprintf(format, args...)}
}
