package wallet

import (
	"context"
	"net/url"
	"strings"

	"github.com/layer-3/walletauth/core"
)

// Redirector hands the user over to another app, typically a wallet's in-app
// browser on mobile
type Redirector interface {
	Open(ctx context.Context, link string) error
}

// RedirectFunc adapts a function to Redirector
type RedirectFunc func(ctx context.Context, link string) error

func (f RedirectFunc) Open(ctx context.Context, link string) error { return f(ctx, link) }

var installURLs = map[core.ProviderID]string{
	core.ProviderMetaMask:      "https://metamask.io/download/",
	core.ProviderPhantom:       "https://phantom.app/download",
	core.ProviderSlush:         "https://slush.app/",
	core.ProviderWalletConnect: "https://walletconnect.network/",
}

// InstallURL is where a user can get the provider's wallet
func InstallURL(provider core.ProviderID) string {
	return installURLs[provider]
}

// DeepLink opens dappURL inside the provider's mobile in-app browser. Empty
// when the provider has no such browser.
func DeepLink(provider core.ProviderID, dappURL string) string {
	switch provider {
	case core.ProviderMetaMask:
		trimmed := strings.TrimPrefix(strings.TrimPrefix(dappURL, "https://"), "http://")
		return "https://metamask.app.link/dapp/" + trimmed
	case core.ProviderPhantom:
		ref := dappURL
		if u, err := url.Parse(dappURL); err == nil && u.Host != "" {
			ref = u.Scheme + "://" + u.Host
		}
		return "https://phantom.app/ul/browse/" + url.QueryEscape(dappURL) + "?ref=" + url.QueryEscape(ref)
	case core.ProviderSlush:
		return "https://my.slush.app/browse/" + url.QueryEscape(dappURL)
	default:
		return ""
	}
}

// missing produces the error for a provider that is not injected: an install
// hint on desktop, a redirect into the wallet app on mobile
func (e *Environment) missing(ctx context.Context, provider core.ProviderID) error {
	if e.Mobile && e.Redirector != nil {
		if link := DeepLink(provider, e.DappURL); link != "" {
			if err := e.Redirector.Open(ctx, link); err != nil {
				return &Error{Kind: KindUnavailable, Provider: provider, Message: "could not open wallet app", Err: err}
			}
			return &Error{Kind: KindRedirected, Provider: provider, Message: "redirected to the wallet app, continue there"}
		}
	}
	return &Error{
		Kind:     KindUnavailable,
		Provider: provider,
		Message:  "wallet not installed, get it at " + InstallURL(provider),
	}
}
