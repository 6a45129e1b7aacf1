// Package accountstest runs the same behavioral checks against every
// ports.AccountRepository implementation.
package accountstest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newUser(at time.Time) *core.User {
	return &core.User{ID: uuid.NewString(), CreatedAt: at}
}

func newWallet(userID, address string, chain core.ChainID, at time.Time) *core.ConnectedWallet {
	return &core.ConnectedWallet{
		ID:         uuid.NewString(),
		UserID:     userID,
		Address:    address,
		Chain:      chain,
		Provider:   core.ProviderMetaMask,
		IsVerified: true,
		VerifiedAt: &at,
		CreatedAt:  at,
	}
}

func primaryOf(t *testing.T, wallets []*core.ConnectedWallet) string {
	t.Helper()
	var primary string
	for _, w := range wallets {
		if w.IsPrimary {
			require.Empty(t, primary, "more than one primary wallet")
			primary = w.ID
		}
	}
	return primary
}

// Run exercises repo. newRepo must return an empty repository.
func Run(t *testing.T, newRepo func(t *testing.T) ports.AccountRepository) {
	t.Run("CreateAndFind", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		user := newUser(base)
		wallet := newWallet(user.ID, "0x71C7656EC7ab88b098defB751B7401B5f6d8976F", core.ChainEthereum, base)

		require.NoError(t, repo.CreateUserWithWallet(ctx, user, wallet))

		got, err := repo.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, got.ProfileCompleted)

		// Same address on another EVM chain is the same wallet
		w, err := repo.FindWallet(ctx, core.FamilyEVM, wallet.Address)
		require.NoError(t, err)
		assert.Equal(t, user.ID, w.UserID)
		assert.True(t, w.IsPrimary)

		_, err = repo.FindWallet(ctx, core.FamilySolana, wallet.Address)
		assert.ErrorIs(t, err, core.ErrWalletNotFound)

		_, err = repo.GetUser(ctx, uuid.NewString())
		assert.ErrorIs(t, err, core.ErrUserNotFound)

		other := newUser(base)
		err = repo.CreateUserWithWallet(ctx, other, newWallet(other.ID, wallet.Address, core.ChainBase, base))
		assert.ErrorIs(t, err, core.ErrWalletLinkedElsewhere)
	})

	t.Run("CompleteProfile", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		alice := newUser(base)
		require.NoError(t, repo.CreateUserWithWallet(ctx, alice, newWallet(alice.ID, "0x0000000000000000000000000000000000000001", core.ChainEthereum, base)))
		bob := newUser(base)
		require.NoError(t, repo.CreateUserWithWallet(ctx, bob, newWallet(bob.ID, "0x0000000000000000000000000000000000000002", core.ChainEthereum, base)))

		at := base.Add(time.Minute)
		u, err := repo.CompleteProfile(ctx, alice.ID, core.ProfileUpdate{Username: "alice_1", FullName: "Alice", AgreeToTerms: true, AgreeToPrivacy: true}, at)
		require.NoError(t, err)
		assert.True(t, u.ProfileCompleted)
		assert.Equal(t, "alice_1", u.Username)
		require.NotNil(t, u.TermsAcceptedAt)
		assert.True(t, at.Equal(*u.TermsAcceptedAt))

		_, err = repo.CompleteProfile(ctx, alice.ID, core.ProfileUpdate{Username: "alice_2"}, at)
		assert.ErrorIs(t, err, core.ErrProfileAlreadyComplete)

		_, err = repo.CompleteProfile(ctx, bob.ID, core.ProfileUpdate{Username: "ALICE_1"}, at)
		assert.ErrorIs(t, err, core.ErrUsernameTaken)

		got, err := repo.GetUser(ctx, bob.ID)
		require.NoError(t, err)
		assert.False(t, got.ProfileCompleted)
	})

	t.Run("LinkAndPrimary", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		user := newUser(base)
		first := newWallet(user.ID, "0x0000000000000000000000000000000000000003", core.ChainEthereum, base)
		require.NoError(t, repo.CreateUserWithWallet(ctx, user, first))

		second := newWallet(user.ID, "11111111111111111111111111111111", core.ChainSolana, base.Add(time.Second))
		second.Provider = core.ProviderPhantom
		require.NoError(t, repo.AddWallet(ctx, second))

		wallets, err := repo.ListWallets(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, wallets, 2)
		assert.Equal(t, first.ID, wallets[0].ID)
		assert.Equal(t, first.ID, primaryOf(t, wallets))

		third := newWallet(user.ID, "0x0000000000000000000000000000000000000004", core.ChainPolygon, base.Add(2*time.Second))
		third.IsPrimary = true
		require.NoError(t, repo.AddWallet(ctx, third))

		wallets, err = repo.ListWallets(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, third.ID, primaryOf(t, wallets))

		require.NoError(t, repo.SetPrimary(ctx, user.ID, second.ID))
		wallets, err = repo.ListWallets(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, primaryOf(t, wallets))

		assert.ErrorIs(t, repo.SetPrimary(ctx, uuid.NewString(), second.ID), core.ErrWalletNotFound)
	})

	t.Run("Touch", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		user := newUser(base)
		w := newWallet(user.ID, "0x0000000000000000000000000000000000000005", core.ChainEthereum, base)
		require.NoError(t, repo.CreateUserWithWallet(ctx, user, w))

		at := base.Add(time.Hour)
		require.NoError(t, repo.TouchWallet(ctx, w.ID, core.ChainBase, core.ProviderWalletConnect, at))

		got, err := repo.FindWallet(ctx, core.FamilyEVM, w.Address)
		require.NoError(t, err)
		assert.Equal(t, core.ChainBase, got.Chain)
		assert.Equal(t, core.ProviderWalletConnect, got.Provider)
		require.NotNil(t, got.VerifiedAt)
		assert.True(t, at.Equal(*got.VerifiedAt))
	})

	t.Run("Remove", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		user := newUser(base)
		first := newWallet(user.ID, "0x0000000000000000000000000000000000000006", core.ChainEthereum, base)
		require.NoError(t, repo.CreateUserWithWallet(ctx, user, first))

		assert.ErrorIs(t, repo.RemoveWallet(ctx, user.ID, first.ID), core.ErrLastWallet)

		second := newWallet(user.ID, "0x0000000000000000000000000000000000000007", core.ChainEthereum, base.Add(time.Second))
		require.NoError(t, repo.AddWallet(ctx, second))
		third := newWallet(user.ID, "0x0000000000000000000000000000000000000008", core.ChainEthereum, base.Add(2*time.Second))
		require.NoError(t, repo.AddWallet(ctx, third))

		// Removing the primary promotes the oldest remaining wallet
		require.NoError(t, repo.RemoveWallet(ctx, user.ID, first.ID))
		wallets, err := repo.ListWallets(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, wallets, 2)
		assert.Equal(t, second.ID, primaryOf(t, wallets))

		_, err = repo.FindWallet(ctx, core.FamilyEVM, first.Address)
		assert.ErrorIs(t, err, core.ErrWalletNotFound)

		assert.ErrorIs(t, repo.RemoveWallet(ctx, uuid.NewString(), second.ID), core.ErrWalletNotFound)
		assert.ErrorIs(t, repo.RemoveWallet(ctx, user.ID, uuid.NewString()), core.ErrWalletNotFound)
	})
}
