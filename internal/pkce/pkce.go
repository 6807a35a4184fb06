// Package pkce generates the per-login secrets for the authorization code flow.
package pkce

import (
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// MethodS256 is the only challenge method the auth service accepts.
const MethodS256 = "S256"

// Challenge holds the values for one login attempt.
// Verifier stays local; Challenge and State go into the login URL.
type Challenge struct {
	Verifier  string
	Challenge string
	Method    string
	State     string
}

// Generate returns a fresh verifier, its S256 challenge and a random state.
// Verifier, challenge and state only use URL-safe characters.
func Generate() Challenge {
	verifier := oauth2.GenerateVerifier()
	return Challenge{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    MethodS256,
		State:     uuid.NewString(),
	}
}
