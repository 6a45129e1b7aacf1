package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/layer-3/walletauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepLink(t *testing.T) {
	assert.Equal(t, "https://metamask.app.link/dapp/app.example.com/login",
		DeepLink(core.ProviderMetaMask, "https://app.example.com/login"))
	assert.Equal(t, "https://phantom.app/ul/browse/https%3A%2F%2Fapp.example.com%2Flogin?ref=https%3A%2F%2Fapp.example.com",
		DeepLink(core.ProviderPhantom, "https://app.example.com/login"))
	assert.Equal(t, "https://my.slush.app/browse/https%3A%2F%2Fapp.example.com",
		DeepLink(core.ProviderSlush, "https://app.example.com"))
	assert.Empty(t, DeepLink(core.ProviderWalletConnect, "https://app.example.com"))
}

func TestMissingProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("desktop", func(t *testing.T) {
		env := &Environment{}
		err := env.missing(ctx, core.ProviderMetaMask)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Contains(t, err.Error(), InstallURL(core.ProviderMetaMask))
	})

	t.Run("mobile", func(t *testing.T) {
		var opened string
		env := &Environment{
			Mobile:  true,
			DappURL: "https://app.example.com",
			Redirector: RedirectFunc(func(_ context.Context, link string) error {
				opened = link
				return nil
			}),
		}
		err := env.missing(ctx, core.ProviderPhantom)
		assert.ErrorIs(t, err, ErrRedirected)
		assert.Equal(t, DeepLink(core.ProviderPhantom, "https://app.example.com"), opened)
	})

	t.Run("mobile redirect fails", func(t *testing.T) {
		env := &Environment{
			Mobile:  true,
			DappURL: "https://app.example.com",
			Redirector: RedirectFunc(func(context.Context, string) error {
				return errors.New("no handler")
			}),
		}
		err := env.missing(ctx, core.ProviderSlush)
		require.Error(t, err)
		assert.Equal(t, KindUnavailable, KindOf(err))
	})
}
