// Package instrumentation provides OpenTelemetry metrics and tracing for
// the server: tool invocations, Sheets API operations (including retries),
// and the OAuth credential lifecycle (auth flows and token refreshes).
//
// The Provider owns the meter and tracer providers and their exporters
// (prometheus, otlp or stdout for metrics; otlp, stdout or none for
// traces). When instrumentation is disabled the Metrics recorder degrades
// to a no-op so call sites need no conditionals.
package instrumentation
