// Package sheets provides a client for the Google Sheets API tailored to
// the expense ledger layout: creating spreadsheets with a header row,
// appending expense rows, and reading recent entries.
//
// All remote calls go through a bounded retry loop that retries rate
// limits and server errors with exponential backoff and reports
// exhausted retries as ErrUnavailable. A token rejected mid-flight gets
// one re-acquisition and one replay of the same call; a second
// rejection surfaces as ErrTokenExpired.
package sheets
