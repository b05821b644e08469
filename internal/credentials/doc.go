// Package credentials persists the OAuth2 credential set for the single
// local user of this server.
//
// Two files are involved: the operator-provided Google client secret JSON
// (read-only, parsed into an oauth2.Config) and the credential file owned
// by this package, which holds the current access token, refresh token and
// expiry. A missing, unreadable or corrupt credential file is reported as
// ErrNotFound so callers can recover by re-running the consent flow.
package credentials
