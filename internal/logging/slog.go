package logging

import (
	"log/slog"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation   = "operation"
	KeyTool        = "tool"
	KeySpreadsheet = "spreadsheet"
	KeyDuration    = "duration"
	KeyStatus      = "status"
	KeyError       = "error"
	KeyAttempt     = "attempt"
)

// Status values for consistent logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// WithSpreadsheet returns a logger with the spreadsheet attribute set.
func WithSpreadsheet(logger *slog.Logger, spreadsheetID string) *slog.Logger {
	return logger.With(slog.String(KeySpreadsheet, spreadsheetID))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Spreadsheet returns a slog attribute for the spreadsheet ID.
func Spreadsheet(spreadsheetID string) slog.Attr {
	return slog.String(KeySpreadsheet, spreadsheetID)
}

// Status returns a slog attribute for the operation status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Error returns a slog attribute for an error value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
