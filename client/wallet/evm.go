package wallet

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/walletauth/chains/evm"
	"github.com/layer-3/walletauth/core"
)

const metaMaskRDNS = "io.metamask"

// Injected wallets that also set isMetaMask for compatibility
var impersonatorFlags = []string{
	"isPhantom",
	"isBraveWallet",
	"isCoinbaseWallet",
	"isRabby",
	"isOkxWallet",
	"isTrust",
}

// EVMAdapter signs in with MetaMask
type EVMAdapter struct {
	env *Environment

	mu      sync.Mutex
	address string
}

func NewEVMAdapter(env *Environment) *EVMAdapter {
	return &EVMAdapter{env: env}
}

func (a *EVMAdapter) ID() core.ProviderID { return core.ProviderMetaMask }
func (a *EVMAdapter) Family() core.Family { return core.FamilyEVM }

func (a *EVMAdapter) provider() EvmProvider {
	if a.env.Announced != nil {
		if ann, ok := a.env.Announced.Lookup(metaMaskRDNS); ok && ann.Provider != nil {
			return ann.Provider
		}
	}
	for _, p := range a.env.EVM {
		if isMetaMask(p) {
			return p
		}
	}
	return nil
}

func isMetaMask(p EvmProvider) bool {
	f, ok := p.(Flagged)
	if !ok {
		return false
	}
	flags := f.Flags()
	if !flags["isMetaMask"] {
		return false
	}
	for _, other := range impersonatorFlags {
		if flags[other] {
			return false
		}
	}
	return true
}

func (a *EVMAdapter) IsInstalled() bool {
	return a.provider() != nil
}

func (a *EVMAdapter) Connect(ctx context.Context) (string, error) {
	p := a.provider()
	if p == nil {
		return "", a.env.missing(ctx, a.ID())
	}

	var accounts []string
	if err := p.Request(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return "", normalize(a.ID(), opConnect, err)
	}
	if len(accounts) == 0 {
		return "", lockedError(a.ID())
	}

	address, err := evm.NormalizeAddress(accounts[0])
	if err != nil {
		return "", &Error{Kind: KindUnknown, Provider: a.ID(), Message: "wallet returned an invalid address", Err: err}
	}
	a.mu.Lock()
	a.address = address
	a.mu.Unlock()
	return address, nil
}

func (a *EVMAdapter) Chain(ctx context.Context) (core.ChainID, bool) {
	p := a.provider()
	if p == nil {
		return "", false
	}
	var raw string
	if err := p.Request(ctx, &raw, "eth_chainId"); err != nil {
		return "", false
	}
	id, err := hexutil.DecodeUint64(strings.ToLower(raw))
	if err != nil {
		return "", false
	}
	return core.ChainFromEIP155(id)
}

func (a *EVMAdapter) SignMessage(ctx context.Context, text string) (string, error) {
	p := a.provider()
	if p == nil {
		return "", a.env.missing(ctx, a.ID())
	}
	a.mu.Lock()
	address := a.address
	a.mu.Unlock()

	if address == "" {
		return "", &Error{Kind: KindLocked, Provider: a.ID(), Message: "wallet not connected"}
	}
	return personalSign(ctx, p, a.ID(), address, text)
}

func personalSign(ctx context.Context, p EvmProvider, id core.ProviderID, address, text string) (string, error) {
	var signature string
	if err := p.Request(ctx, &signature, "personal_sign", hexutil.Encode([]byte(text)), address); err != nil {
		return "", normalize(id, opSign, err)
	}
	return signature, nil
}

func (a *EVMAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	a.address = ""
	a.mu.Unlock()

	p := a.provider()
	if p == nil {
		return nil
	}
	// Older wallets lack wallet_revokePermissions, forgetting the address is enough
	_ = p.Request(ctx, nil, "wallet_revokePermissions", map[string]any{"eth_accounts": map[string]any{}})
	return nil
}
