package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/layer-3/walletauth/core"
)

type challengeRequest struct {
	Address  string          `json:"address"`
	Chain    core.ChainID    `json:"chain"`
	Provider core.ProviderID `json:"provider"`
}

type challengeResponse struct {
	Message   string    `json:"message"`
	Nonce     string    `json:"nonce"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Domain    string    `json:"domain"`
}

// Challenge requests a sign-in challenge for a connected wallet
func (c *Client) Challenge(ctx context.Context, address string, chain core.ChainID, provider core.ProviderID) (*core.Challenge, error) {
	var resp challengeResponse
	err := c.send(ctx, http.MethodPost, "/auth/wallet-connect/challenge", "", challengeRequest{
		Address:  address,
		Chain:    chain,
		Provider: provider,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &core.Challenge{
		Address:   address,
		Chain:     chain,
		Provider:  provider,
		Nonce:     resp.Nonce,
		Message:   resp.Message,
		Domain:    resp.Domain,
		IssuedAt:  resp.IssuedAt,
		ExpiresAt: resp.ExpiresAt,
	}, nil
}

// Verify submits a signed challenge and stores the issued tokens
func (c *Client) Verify(ctx context.Context, req core.SignedChallenge) (*core.WalletAuthResult, error) {
	var result core.WalletAuthResult
	if err := c.send(ctx, http.MethodPost, "/auth/wallet-connect/verify", "", req, &result); err != nil {
		return nil, err
	}
	if _, err := c.store(result.Tokens); err != nil {
		return nil, err
	}
	return &result, nil
}

type ProfileRequest struct {
	Username       string `json:"username"`
	FullName       string `json:"fullName,omitempty"`
	AgreeToTerms   bool   `json:"agreeToTerms"`
	AgreeToPrivacy bool   `json:"agreeToPrivacy"`
}

// CompleteProfile finishes a pending profile and swaps in the new tokens
func (c *Client) CompleteProfile(ctx context.Context, req ProfileRequest) (*core.WalletAuthResult, error) {
	var result core.WalletAuthResult
	if err := c.authorized(ctx, http.MethodPost, "/auth/wallet-connect/complete-profile", req, &result); err != nil {
		return nil, err
	}
	if _, err := c.store(result.Tokens); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ConnectedWallets(ctx context.Context) ([]*core.ConnectedWallet, error) {
	var wallets []*core.ConnectedWallet
	if err := c.authorized(ctx, http.MethodGet, "/auth/wallet-connect/connected", nil, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

// LinkRequest adds a wallet proven by a signed challenge to the account
type LinkRequest struct {
	core.SignedChallenge
	Label     string `json:"label,omitempty"`
	IsPrimary bool   `json:"isPrimary"`
}

func (c *Client) LinkWallet(ctx context.Context, req LinkRequest) (*core.ConnectedWallet, error) {
	var w core.ConnectedWallet
	if err := c.authorized(ctx, http.MethodPost, "/auth/wallet-connect/link", req, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// UnlinkWallet removes a wallet. An empty chain matches the address on any
// chain of its family.
func (c *Client) UnlinkWallet(ctx context.Context, address string, chain core.ChainID) error {
	path := "/auth/wallet-connect/" + url.PathEscape(address)
	if chain != "" {
		path += "?chain=" + url.QueryEscape(string(chain))
	}
	return c.authorized(ctx, http.MethodDelete, path, nil, nil)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshTokens exchanges a refresh token without touching the token store
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*core.Tokens, error) {
	var tokens core.Tokens
	if err := c.send(ctx, http.MethodPost, "/auth/refresh", "", refreshRequest{RefreshToken: refreshToken}, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Logout revokes the stored refresh token and forgets the session
func (c *Client) Logout(ctx context.Context) error {
	tokens, err := c.tokens.Load()
	if err != nil {
		return err
	}
	if tokens.RefreshToken != "" {
		err = c.send(ctx, http.MethodPost, "/auth/logout", tokens.AccessToken, refreshRequest{RefreshToken: tokens.RefreshToken}, nil)
	}
	c.clear()
	return err
}

type Me struct {
	User           *core.User     `json:"user"`
	ProfilePending bool           `json:"profilePending"`
	Wallet         core.WalletRef `json:"wallet"`
}

func (c *Client) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.authorized(ctx, http.MethodGet, "/api/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// Refresh reloads the signed-in user, renewing tokens when needed
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.Me(ctx)
	return err
}

type TradingAuthorization struct {
	Authorized bool   `json:"authorized"`
	UserID     string `json:"userId"`
	Address    string `json:"address"`
}

// AuthorizeTrading fails with core.ErrProfilePending until the profile is complete
func (c *Client) AuthorizeTrading(ctx context.Context) (*TradingAuthorization, error) {
	var auth TradingAuthorization
	if err := c.authorized(ctx, http.MethodGet, "/api/trading/authorize", nil, &auth); err != nil {
		return nil, err
	}
	return &auth, nil
}
