// Package server wires the long-lived pieces of the MCP server together:
// the credential store, the token manager, the lazily constructed Sheets
// client and tool dispatcher, plus the metrics endpoint and health checks.
package server
