package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrOperation = "operation"
	attrStatus    = "status"
	attrResult    = "result"
	attrTool      = "tool"
)

// Result values for OAuth and API metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics provides methods for recording observability metrics. The zero
// value is a no-op recorder.
type Metrics struct {
	// MCP tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// Sheets API metrics
	sheetsOperationsTotal   metric.Int64Counter
	sheetsOperationDuration metric.Float64Histogram
	sheetsRetriesTotal      metric.Int64Counter

	// OAuth credential lifecycle metrics
	oauthAuthFlowsTotal    metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	m.sheetsOperationsTotal, err = meter.Int64Counter(
		"sheets_api_operations_total",
		metric.WithDescription("Total number of Google Sheets API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets_api_operations_total counter: %w", err)
	}

	m.sheetsOperationDuration, err = meter.Float64Histogram(
		"sheets_api_operation_duration_seconds",
		metric.WithDescription("Google Sheets API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets_api_operation_duration_seconds histogram: %w", err)
	}

	m.sheetsRetriesTotal, err = meter.Int64Counter(
		"sheets_api_retries_total",
		metric.WithDescription("Total number of retried Google Sheets API attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets_api_retries_total counter: %w", err)
	}

	m.oauthAuthFlowsTotal, err = meter.Int64Counter(
		"oauth_auth_flows_total",
		metric.WithDescription("Total number of interactive OAuth consent flows"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_flows_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	return m, nil
}

// RecordToolInvocation records an MCP tool invocation with tool name,
// status ("success" or "error") and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSheetsOperation records a Sheets API operation (create, append,
// read) with status and duration.
func (m *Metrics) RecordSheetsOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m.sheetsOperationsTotal == nil || m.sheetsOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.sheetsOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.sheetsOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSheetsRetry records one retried attempt of a Sheets API operation.
func (m *Metrics) RecordSheetsRetry(ctx context.Context, operation string) {
	if m.sheetsRetriesTotal == nil {
		return // Instrumentation not initialized
	}

	m.sheetsRetriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOperation, operation),
	))
}

// RecordAuthFlow records an interactive consent flow attempt.
// Result should be one of: "success", "failure".
func (m *Metrics) RecordAuthFlow(ctx context.Context, result string) {
	if m.oauthAuthFlowsTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthAuthFlowsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordTokenRefresh records an OAuth token refresh attempt.
// Result should be one of: "success", "failure".
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m.oauthTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}
