package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExchangeRequest is the body of the authorization code exchange.
// InvitationCode is sent as null when nil.
type TokenExchangeRequest struct {
	Code           string  `json:"code"`
	CodeVerifier   string  `json:"code_verifier"`
	RedirectURI    string  `json:"redirect_uri"`
	InvitationCode *string `json:"invitation_code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// SocialToken holds the tokens returned by the social login endpoints.
type SocialToken struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ProfileArn   string `json:"profileArn,omitempty"`
	ExpiresIn    int    `json:"expiresIn,omitempty"` // seconds
}

// Validate rejects responses that decoded without an access token, such as
// `{}` or `null`.
func (t SocialToken) Validate() error {
	if t.AccessToken == "" {
		return errors.New("missing accessToken")
	}
	return nil
}

// ExpiresAt returns when the access token expires.
// The exp claim wins when the access token is a JWT; otherwise ExpiresIn is
// counted from issuedAt. The zero time means the expiry is unknown.
func (t SocialToken) ExpiresAt(issuedAt time.Time) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	if t.ExpiresIn > 0 {
		return issuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return time.Time{}
}
