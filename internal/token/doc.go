// Package token guarantees a currently-valid access token before every
// remote API call.
//
// The Manager returns the cached token while it is comfortably inside its
// expiry window, refreshes it through the refresh token when it is not, and
// falls back to the interactive consent flow when no usable credential
// exists. A single mutex serializes the load-refresh-save cycle, so
// concurrent callers hitting an expired token trigger exactly one refresh
// request and share its result. The Manager implements oauth2.TokenSource,
// which lets the Sheets service authenticate every outbound request
// through it.
package token
