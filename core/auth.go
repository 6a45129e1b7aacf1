package core

import "time"

// MaxChallengeTTL bounds how long an issued challenge stays signable
const MaxChallengeTTL = 15 * time.Minute

// Challenge represents an authentication challenge
type Challenge struct {
	ID        string     // Unique identifier for the challenge
	Address   string     // Normalized wallet address the challenge was issued to
	Chain     ChainID    // Chain the wallet was connected to at issuance
	Provider  ProviderID // Wallet provider that will sign
	Nonce     string     // Single-use random nonce embedded in the message
	Message   string     // Exact text the wallet must sign
	Domain    string     // Domain the signature is bound to
	URI       string     // Origin of the sign-in request
	IssuedAt  time.Time  // When the challenge was created
	ExpiresAt time.Time  // When the challenge expires
}

// Expired reports whether the challenge is no longer usable at the given time
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Session represents an authenticated user session
type Session struct {
	ID             string     // Unique session identifier
	UserID         string     // Account the session belongs to
	Address        string     // Wallet address used to authenticate
	Chain          ChainID    // Chain of the authenticating wallet
	Provider       ProviderID // Provider of the authenticating wallet
	ProfilePending bool       // Profile completion still required
	IssuedAt       time.Time  // When the session was created
	RefreshExpiry  time.Time  // When the refresh capability expires
	AccessExpiry   time.Time  // When the access capability expires
	RefreshID      string     // Unique identifier for the refresh token
}

// Tokens is the bearer material returned to a client after authentication
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// WalletRef names the wallet a result was produced for
type WalletRef struct {
	Address  string     `json:"address"`
	Chain    ChainID    `json:"chain"`
	Provider ProviderID `json:"provider"`
}

// WalletAuthResult is produced on a successful signature check
type WalletAuthResult struct {
	User           *User     `json:"user"`
	Tokens         Tokens    `json:"tokens"`
	ProfilePending bool      `json:"profilePending"`
	Wallet         WalletRef `json:"wallet"`
}

// WalletConnection is the client-local record of a connected adapter
type WalletConnection struct {
	Address     string
	Chain       ChainID
	Provider    ProviderID
	IsConnected bool
}

// SignedChallenge is what a client submits to prove control of a wallet
type SignedChallenge struct {
	Address   string     `json:"address"`
	Chain     ChainID    `json:"chain"`
	Provider  ProviderID `json:"provider,omitempty"`
	Signature string     `json:"signature"`
	Message   string     `json:"message"`
	Nonce     string     `json:"nonce,omitempty"`
}
