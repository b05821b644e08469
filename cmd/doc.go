// Package cmd implements the sheetspend command line interface: running
// the MCP server, performing the interactive Google login, and printing
// the version.
package cmd
