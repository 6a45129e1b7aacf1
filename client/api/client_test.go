package api

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/layer-3/walletauth/client/authflow"
	"github.com/layer-3/walletauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"
)

const baseURL = "http://walletauth.test"

var (
	_ authflow.Backend = (*Client)(nil)
	_ authflow.Session = (*Client)(nil)
)

func signedIn(t *testing.T, access string) *Client {
	t.Helper()
	c := New(baseURL)
	require.NoError(t, c.tokens.Save(Tokens{
		AccessToken:  access,
		AccessExpiry: time.Now().Add(5 * time.Minute),
		RefreshToken: "refresh-1",
	}))
	return c
}

func TestChallengeAndVerify(t *testing.T) {
	defer gock.Off()
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	gock.New(baseURL).
		Post("/auth/wallet-connect/challenge").
		MatchType("json").
		JSON(map[string]string{"address": "0xabc", "chain": "ethereum", "provider": "metamask"}).
		Reply(200).
		JSON(map[string]any{
			"message":   "app.example.com wants you to sign in",
			"nonce":     "n-1",
			"issuedAt":  issued,
			"expiresAt": issued.Add(5 * time.Minute),
			"domain":    "app.example.com",
		})

	gock.New(baseURL).
		Post("/auth/wallet-connect/verify").
		MatchType("json").
		JSON(map[string]string{
			"address":   "0xabc",
			"chain":     "ethereum",
			"provider":  "metamask",
			"signature": "0xsig",
			"message":   "app.example.com wants you to sign in",
			"nonce":     "n-1",
		}).
		Reply(200).
		JSON(map[string]any{
			"user":           map[string]any{"id": "u1", "profileCompleted": false},
			"tokens":         map[string]any{"accessToken": "access-1", "refreshToken": "refresh-1", "expiresIn": 300},
			"profilePending": true,
			"wallet":         map[string]any{"address": "0xabc", "chain": "ethereum", "provider": "metamask"},
		})

	c := New(baseURL)
	ctx := context.Background()

	challenge, err := c.Challenge(ctx, "0xabc", core.ChainEthereum, core.ProviderMetaMask)
	require.NoError(t, err)
	assert.Equal(t, "n-1", challenge.Nonce)
	assert.Equal(t, core.ChainEthereum, challenge.Chain)
	assert.True(t, challenge.IssuedAt.Equal(issued))

	result, err := c.Verify(ctx, core.SignedChallenge{
		Address:   "0xabc",
		Chain:     core.ChainEthereum,
		Provider:  core.ProviderMetaMask,
		Signature: "0xsig",
		Message:   challenge.Message,
		Nonce:     challenge.Nonce,
	})
	require.NoError(t, err)
	assert.True(t, result.ProfilePending)
	assert.Equal(t, "u1", result.User.ID)

	tokens, err := c.Tokens()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tokens.AccessToken)
	assert.Equal(t, "refresh-1", tokens.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), tokens.AccessExpiry, 5*time.Second)
	assert.True(t, gock.IsDone())
}

func TestErrorCodesUnwrap(t *testing.T) {
	defer gock.Off()
	gock.New(baseURL).
		Post("/auth/wallet-connect/verify").
		Reply(409).
		JSON(map[string]string{"error": "nonce_consumed"})

	_, err := New(baseURL).Verify(context.Background(), core.SignedChallenge{Address: "0xabc"})

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.ErrorIs(t, err, core.ErrNonceConsumed)
}

func TestRefreshOnUnauthorized(t *testing.T) {
	defer gock.Off()
	gock.New(baseURL).
		Get("/api/me").
		MatchHeader("Authorization", "Bearer stale").
		Reply(401).
		JSON(map[string]string{"error": "token_invalidated"})
	gock.New(baseURL).
		Post("/auth/refresh").
		JSON(map[string]string{"refreshToken": "refresh-1"}).
		Reply(200).
		JSON(map[string]any{"accessToken": "fresh", "refreshToken": "refresh-2", "expiresIn": 300})
	gock.New(baseURL).
		Get("/api/me").
		MatchHeader("Authorization", "Bearer fresh").
		Reply(200).
		JSON(map[string]any{
			"user":           map[string]any{"id": "u1", "username": "alice", "profileCompleted": true},
			"profilePending": false,
			"wallet":         map[string]any{"address": "0xabc", "chain": "base", "provider": "metamask"},
		})

	c := signedIn(t, "stale")
	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", me.User.Username)
	assert.Equal(t, core.ChainBase, me.Wallet.Chain)

	tokens, err := c.Tokens()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tokens.AccessToken)
	assert.Equal(t, "refresh-2", tokens.RefreshToken)
	assert.True(t, gock.IsDone())
}

func TestSecondUnauthorizedClearsTokens(t *testing.T) {
	defer gock.Off()
	gock.New(baseURL).
		Get("/auth/wallet-connect/connected").
		Times(2).
		Reply(401).
		JSON(map[string]string{"error": "invalid_token"})
	gock.New(baseURL).
		Post("/auth/refresh").
		Reply(200).
		JSON(map[string]any{"accessToken": "fresh", "refreshToken": "refresh-2", "expiresIn": 300})

	c := signedIn(t, "stale")
	_, err := c.ConnectedWallets(context.Background())
	assert.ErrorIs(t, err, ErrReauthenticate)

	tokens, err := c.Tokens()
	require.NoError(t, err)
	assert.True(t, tokens.Empty())
	assert.True(t, gock.IsDone())
}

func TestRefreshRejected(t *testing.T) {
	defer gock.Off()
	gock.New(baseURL).
		Get("/api/me").
		Reply(401).
		JSON(map[string]string{"error": "token_expired"})
	gock.New(baseURL).
		Post("/auth/refresh").
		Reply(401).
		JSON(map[string]string{"error": "token_expired"})

	c := signedIn(t, "stale")
	err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrReauthenticate)

	tokens, _ := c.Tokens()
	assert.True(t, tokens.Empty())
}

func TestExpiredAccessTokenRefreshedFirst(t *testing.T) {
	defer gock.Off()
	gock.New(baseURL).
		Post("/auth/refresh").
		Reply(200).
		JSON(map[string]any{"accessToken": "fresh", "refreshToken": "refresh-2", "expiresIn": 300})
	gock.New(baseURL).
		Get("/api/trading/authorize").
		MatchHeader("Authorization", "Bearer fresh").
		Reply(200).
		JSON(map[string]any{"authorized": true, "userId": "u1", "address": "0xabc"})

	c := New(baseURL)
	require.NoError(t, c.tokens.Save(Tokens{
		AccessToken:  "old",
		AccessExpiry: time.Now().Add(-time.Minute),
		RefreshToken: "refresh-1",
	}))

	auth, err := c.AuthorizeTrading(context.Background())
	require.NoError(t, err)
	assert.True(t, auth.Authorized)
	assert.True(t, gock.IsDone())
}

func TestUnauthorizedAfterProactiveRefresh(t *testing.T) {
	defer gock.Off()
	gock.New(baseURL).
		Post("/auth/refresh").
		Times(1).
		Reply(200).
		JSON(map[string]any{"accessToken": "fresh", "refreshToken": "refresh-2", "expiresIn": 300})
	gock.New(baseURL).
		Get("/auth/wallet-connect/connected").
		MatchHeader("Authorization", "Bearer fresh").
		Times(1).
		Reply(401).
		JSON(map[string]string{"error": "token_invalidated"})

	c := New(baseURL)
	require.NoError(t, c.tokens.Save(Tokens{
		AccessToken:  "old",
		AccessExpiry: time.Now().Add(-time.Minute),
		RefreshToken: "refresh-1",
	}))

	_, err := c.ConnectedWallets(context.Background())
	assert.ErrorIs(t, err, ErrReauthenticate)

	tokens, err := c.Tokens()
	require.NoError(t, err)
	assert.True(t, tokens.Empty())
	assert.True(t, gock.IsDone())
}

func TestProfilePendingForbidden(t *testing.T) {
	defer gock.Off()
	gock.New(baseURL).
		Get("/api/trading/authorize").
		Reply(403).
		JSON(map[string]string{"error": "profile_pending"})

	_, err := signedIn(t, "access").AuthorizeTrading(context.Background())
	assert.ErrorIs(t, err, core.ErrProfilePending)
}

func TestUnlinkWallet(t *testing.T) {
	defer gock.Off()
	gock.New(baseURL).
		Delete("/auth/wallet-connect/0xabc").
		MatchParam("chain", "polygon").
		MatchHeader("Authorization", "Bearer access").
		Reply(200).
		JSON(map[string]string{"message": "Wallet unlinked"})

	require.NoError(t, signedIn(t, "access").UnlinkWallet(context.Background(), "0xabc", core.ChainPolygon))
	assert.True(t, gock.IsDone())
}

func TestLinkWallet(t *testing.T) {
	defer gock.Off()
	gock.New(baseURL).
		Post("/auth/wallet-connect/link").
		MatchType("json").
		JSON(map[string]any{
			"address":   "0xdef",
			"chain":     "base",
			"signature": "0xsig",
			"message":   "msg",
			"nonce":     "n-2",
			"label":     "cold",
			"isPrimary": true,
		}).
		Reply(200).
		JSON(map[string]any{"id": "w2", "address": "0xdef", "chain": "base", "isPrimary": true, "isVerified": true})

	w, err := signedIn(t, "access").LinkWallet(context.Background(), LinkRequest{
		SignedChallenge: core.SignedChallenge{Address: "0xdef", Chain: core.ChainBase, Signature: "0xsig", Message: "msg", Nonce: "n-2"},
		Label:           "cold",
		IsPrimary:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "w2", w.ID)
	assert.True(t, w.IsPrimary)
}

func TestLogoutClearsTokens(t *testing.T) {
	defer gock.Off()
	gock.New(baseURL).
		Post("/auth/logout").
		JSON(map[string]string{"refreshToken": "refresh-1"}).
		Reply(200).
		JSON(map[string]string{"message": "Logged out"})

	c := signedIn(t, "access")
	require.NoError(t, c.Logout(context.Background()))

	tokens, _ := c.Tokens()
	assert.True(t, tokens.Empty())
	assert.True(t, gock.IsDone())
}

func TestNotSignedIn(t *testing.T) {
	_, err := New(baseURL).Me(context.Background())
	assert.ErrorIs(t, err, ErrReauthenticate)
}

func TestFileTokenStore(t *testing.T) {
	s := NewFileTokenStore(filepath.Join(t.TempDir(), "walletauth", "tokens.json"))

	tokens, err := s.Load()
	require.NoError(t, err)
	assert.True(t, tokens.Empty())

	want := Tokens{AccessToken: "a", AccessExpiry: time.Now().Truncate(time.Second), RefreshToken: "r"}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.True(t, want.AccessExpiry.Equal(got.AccessExpiry))

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	got, err = s.Load()
	require.NoError(t, err)
	assert.True(t, got.Empty())
}
