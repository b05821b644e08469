// Package expense_tools registers the expense-tracking MCP tools and
// contains the dispatcher that validates tool arguments, obtains an
// access token, and drives the Sheets client.
//
// Validation happens before any remote call: an invocation with a bad
// amount, currency, or date never reaches the Sheets API. Mid-flight
// token rejections are replayed inside the Sheets client; by the time
// one surfaces here the token has already been re-acquired once, so it
// maps to an auth failure rather than another retry.
package expense_tools
