package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims carry the wallet a session was opened with
type SessionClaims struct {
	Address        string `json:"addr"`
	Chain          string `json:"chain"`
	Provider       string `json:"prv"`
	ProfilePending bool   `json:"pp,omitempty"`
}

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionClaims
	RefreshID string `json:"rid"` // ID of the refresh token
}

// RefreshClaims combine standard claims with the session wallet
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionClaims
}
