// Package wallet connects to user wallets and asks them to sign sign-in
// messages. Each provider capability set has one adapter; every adapter
// reports failures as *Error.
package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/layer-3/walletauth/core"
)

// Adapter is the uniform view of a wallet used by the sign-in flow
type Adapter interface {
	ID() core.ProviderID
	Family() core.Family
	// IsInstalled must not prompt the user
	IsInstalled() bool
	Connect(ctx context.Context) (string, error)
	// Chain reports the active chain without prompting
	Chain(ctx context.Context) (core.ChainID, bool)
	SignMessage(ctx context.Context, text string) (string, error)
	Disconnect(ctx context.Context) error
}

// OutOfBand is implemented by adapters that connect through a pairing URI
// shown to the user instead of an injected provider
type OutOfBand interface {
	Pair(ctx context.Context) (string, error)
	WatchConnection(fn func(address string)) (unsubscribe func())
}

// EvmProvider is an EIP-1193 provider
type EvmProvider interface {
	Request(ctx context.Context, result any, method string, params ...any) error
}

// Flagged is implemented by injected EVM providers that expose identity flags
// such as isMetaMask
type Flagged interface {
	Flags() map[string]bool
}

// SolanaProvider is the subset of the Solana wallet interface used for sign-in
type SolanaProvider interface {
	Connect(ctx context.Context) (solanago.PublicKey, error)
	PublicKey() (solanago.PublicKey, bool)
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
	Disconnect(ctx context.Context) error
}

// SuiAccount is a wallet-standard account
type SuiAccount struct {
	Address   string
	PublicKey []byte
	Chains    []string
}

// SuiProvider exposes the wallet-standard features used for sign-in
type SuiProvider interface {
	Connect(ctx context.Context) ([]SuiAccount, error)
	Accounts() []SuiAccount
	// SignPersonalMessage returns the serialized signature
	SignPersonalMessage(ctx context.Context, message []byte, account SuiAccount) (string, error)
	Disconnect(ctx context.Context) error
}

// RPCProvider adapts a go-ethereum RPC client, such as one dialed to a
// wallet bridge, to EvmProvider
type RPCProvider struct {
	Client *rpc.Client
}

func (p RPCProvider) Request(ctx context.Context, result any, method string, params ...any) error {
	return p.Client.CallContext(ctx, result, method, params...)
}

// Environment describes what the host exposes to the adapters
type Environment struct {
	// EVM lists injected EIP-1193 providers, in injection order
	EVM []EvmProvider
	// Announced is consulted before EVM when set
	Announced *Registry

	Solana SolanaProvider
	Sui    SuiProvider

	Mobile     bool
	DappURL    string
	Redirector Redirector
}

// Adapters builds the built-in adapter set for the environment
func (e *Environment) Adapters(session SessionClient) []Adapter {
	adapters := []Adapter{
		NewEVMAdapter(e),
		NewSolanaAdapter(e, core.ChainSolana),
		NewSuiAdapter(e),
	}
	if session != nil {
		adapters = append(adapters, NewSessionAdapter(session))
	}
	return adapters
}
