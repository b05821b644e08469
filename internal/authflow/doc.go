// Package authflow implements the interactive OAuth2 authorization-code
// flow for the local user.
//
// A flow binds a short-lived loopback HTTP listener, surfaces the consent
// URL to the operator, waits for exactly one callback carrying the expected
// state token, exchanges the authorization code for tokens and tears the
// listener down on every exit path. At most one flow can be active at a
// time; overlapping attempts fail fast with ErrInProgress.
package authflow
