package credentials

import (
	"time"

	"golang.org/x/oauth2"
)

// Credential is the persisted token set for the local user.
//
// Invariant: when AccessToken is set, Expiry is set as well. RefreshToken,
// once obtained, is carried forward across refreshes because Google does
// not reissue it on every token response.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// Token converts the credential to an oauth2.Token.
func (c *Credential) Token() *oauth2.Token {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    tokenType,
		Expiry:       c.Expiry,
	}
}

// FromToken builds a credential from a token response. If the response does
// not carry a refresh token, prevRefreshToken is retained.
func FromToken(t *oauth2.Token, prevRefreshToken string) *Credential {
	refresh := t.RefreshToken
	if refresh == "" {
		refresh = prevRefreshToken
	}
	return &Credential{
		AccessToken:  t.AccessToken,
		RefreshToken: refresh,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}
