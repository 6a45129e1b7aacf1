package wallet

import (
	"context"
	"sync"

	"github.com/layer-3/walletauth/chains/sui"
	"github.com/layer-3/walletauth/core"
)

// SuiAdapter signs in with Slush
type SuiAdapter struct {
	env *Environment

	mu      sync.Mutex
	account *SuiAccount
}

func NewSuiAdapter(env *Environment) *SuiAdapter {
	return &SuiAdapter{env: env}
}

func (a *SuiAdapter) ID() core.ProviderID { return core.ProviderSlush }
func (a *SuiAdapter) Family() core.Family { return core.FamilySui }

func (a *SuiAdapter) IsInstalled() bool {
	return a.env.Sui != nil
}

func (a *SuiAdapter) Connect(ctx context.Context) (string, error) {
	p := a.env.Sui
	if p == nil {
		return "", a.env.missing(ctx, a.ID())
	}
	accounts, err := p.Connect(ctx)
	if err != nil {
		return "", normalize(a.ID(), opConnect, err)
	}
	if len(accounts) == 0 {
		return "", lockedError(a.ID())
	}

	address, err := sui.NormalizeAddress(accounts[0].Address)
	if err != nil {
		return "", &Error{Kind: KindUnknown, Provider: a.ID(), Message: "wallet returned an invalid address", Err: err}
	}
	account := accounts[0]
	a.mu.Lock()
	a.account = &account
	a.mu.Unlock()
	return address, nil
}

func (a *SuiAdapter) Chain(context.Context) (core.ChainID, bool) {
	if a.env.Sui == nil {
		return "", false
	}
	accounts := a.env.Sui.Accounts()
	if len(accounts) == 0 {
		return "", false
	}
	for _, c := range accounts[0].Chains {
		switch c {
		case core.ChainSui.Reference():
			return core.ChainSui, true
		case core.ChainSuiTestnet.Reference():
			return core.ChainSuiTestnet, true
		}
	}
	return core.ChainSui, true
}

func (a *SuiAdapter) SignMessage(ctx context.Context, text string) (string, error) {
	p := a.env.Sui
	if p == nil {
		return "", a.env.missing(ctx, a.ID())
	}
	a.mu.Lock()
	account := a.account
	a.mu.Unlock()

	if account == nil {
		return "", &Error{Kind: KindLocked, Provider: a.ID(), Message: "wallet not connected"}
	}
	sig, err := p.SignPersonalMessage(ctx, []byte(text), *account)
	if err != nil {
		return "", normalize(a.ID(), opSign, err)
	}
	return sig, nil
}

func (a *SuiAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	a.account = nil
	a.mu.Unlock()

	if a.env.Sui == nil {
		return nil
	}
	return normalize(a.ID(), opOther, a.env.Sui.Disconnect(ctx))
}
