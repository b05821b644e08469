package logging

import (
	"errors"
	"log/slog"
	"testing"
)

func TestWithOperation(t *testing.T) {
	logger := slog.Default()
	result := WithOperation(logger, "append_row")
	if result == nil {
		t.Error("WithOperation returned nil")
	}
}

func TestWithTool(t *testing.T) {
	logger := slog.Default()
	result := WithTool(logger, "add_expense")
	if result == nil {
		t.Error("WithTool returned nil")
	}
}

func TestWithSpreadsheet(t *testing.T) {
	logger := slog.Default()
	result := WithSpreadsheet(logger, "abc123")
	if result == nil {
		t.Error("WithSpreadsheet returned nil")
	}
}

func TestOperationAttr(t *testing.T) {
	attr := Operation("create_spreadsheet")
	if attr.Key != KeyOperation {
		t.Errorf("Operation key = %q, want %q", attr.Key, KeyOperation)
	}
	if attr.Value.String() != "create_spreadsheet" {
		t.Errorf("Operation value = %q, want %q", attr.Value.String(), "create_spreadsheet")
	}
}

func TestToolAttr(t *testing.T) {
	attr := Tool("list_recent_expenses")
	if attr.Key != KeyTool {
		t.Errorf("Tool key = %q, want %q", attr.Key, KeyTool)
	}
	if attr.Value.String() != "list_recent_expenses" {
		t.Errorf("Tool value = %q, want %q", attr.Value.String(), "list_recent_expenses")
	}
}

func TestSpreadsheetAttr(t *testing.T) {
	attr := Spreadsheet("abc123")
	if attr.Key != KeySpreadsheet {
		t.Errorf("Spreadsheet key = %q, want %q", attr.Key, KeySpreadsheet)
	}
	if attr.Value.String() != "abc123" {
		t.Errorf("Spreadsheet value = %q, want %q", attr.Value.String(), "abc123")
	}
}

func TestStatusAttr(t *testing.T) {
	attr := Status(StatusSuccess)
	if attr.Key != KeyStatus {
		t.Errorf("Status key = %q, want %q", attr.Key, KeyStatus)
	}
	if attr.Value.String() != StatusSuccess {
		t.Errorf("Status value = %q, want %q", attr.Value.String(), StatusSuccess)
	}
}

func TestErrorAttr(t *testing.T) {
	attr := Error(errors.New("boom"))
	if attr.Key != KeyError {
		t.Errorf("Error key = %q, want %q", attr.Key, KeyError)
	}
	if attr.Value.String() != "boom" {
		t.Errorf("Error value = %q, want %q", attr.Value.String(), "boom")
	}
}

func TestErrorAttr_Nil(t *testing.T) {
	attr := Error(nil)
	if attr.Key != KeyError {
		t.Errorf("Error key = %q, want %q", attr.Key, KeyError)
	}
	if attr.Value.String() != "" {
		t.Errorf("Error value for nil = %q, want empty", attr.Value.String())
	}
}
