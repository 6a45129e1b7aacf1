package wallet

import (
	"context"
	"sync"

	"github.com/layer-3/walletauth/chains/evm"
	"github.com/layer-3/walletauth/core"
)

// SessionStatus is the connection state of a remote wallet session
type SessionStatus struct {
	Address   string
	ChainID   uint64
	Connected bool
}

// SessionClient is a session-layer connection to a remote EVM wallet, paired
// by a URI the user scans with the wallet app
type SessionClient interface {
	EvmProvider
	Pair(ctx context.Context) (string, error)
	Status() SessionStatus
	Subscribe(fn func(SessionStatus)) (unsubscribe func())
	Disconnect(ctx context.Context) error
}

// SessionAdapter signs in through WalletConnect
type SessionAdapter struct {
	client SessionClient

	mu      sync.Mutex
	address string
}

var _ OutOfBand = (*SessionAdapter)(nil)

func NewSessionAdapter(client SessionClient) *SessionAdapter {
	return &SessionAdapter{client: client}
}

func (a *SessionAdapter) ID() core.ProviderID { return core.ProviderWalletConnect }
func (a *SessionAdapter) Family() core.Family { return core.FamilyEVM }

// IsInstalled is always true, pairing needs nothing injected
func (a *SessionAdapter) IsInstalled() bool { return true }

// Connect returns the address of an already paired session
func (a *SessionAdapter) Connect(context.Context) (string, error) {
	status := a.client.Status()
	if !status.Connected {
		return "", &Error{Kind: KindUnavailable, Provider: a.ID(), Message: "session not paired"}
	}
	if status.Address == "" {
		return "", lockedError(a.ID())
	}
	address, err := evm.NormalizeAddress(status.Address)
	if err != nil {
		return "", &Error{Kind: KindUnknown, Provider: a.ID(), Message: "wallet returned an invalid address", Err: err}
	}
	a.setAddress(address)
	return address, nil
}

func (a *SessionAdapter) Pair(ctx context.Context) (string, error) {
	uri, err := a.client.Pair(ctx)
	if err != nil {
		return "", normalize(a.ID(), opConnect, err)
	}
	return uri, nil
}

// WatchConnection calls fn with the session address once the remote wallet
// approves the pairing
func (a *SessionAdapter) WatchConnection(fn func(address string)) func() {
	return a.client.Subscribe(func(status SessionStatus) {
		if !status.Connected || status.Address == "" {
			return
		}
		address, err := evm.NormalizeAddress(status.Address)
		if err != nil {
			return
		}
		a.setAddress(address)
		fn(address)
	})
}

func (a *SessionAdapter) Chain(context.Context) (core.ChainID, bool) {
	status := a.client.Status()
	if !status.Connected {
		return "", false
	}
	return core.ChainFromEIP155(status.ChainID)
}

func (a *SessionAdapter) SignMessage(ctx context.Context, text string) (string, error) {
	a.mu.Lock()
	address := a.address
	a.mu.Unlock()

	if address == "" {
		return "", &Error{Kind: KindLocked, Provider: a.ID(), Message: "wallet not connected"}
	}
	return personalSign(ctx, a.client, a.ID(), address, text)
}

func (a *SessionAdapter) Disconnect(ctx context.Context) error {
	a.setAddress("")
	return normalize(a.ID(), opOther, a.client.Disconnect(ctx))
}

func (a *SessionAdapter) setAddress(address string) {
	a.mu.Lock()
	a.address = address
	a.mu.Unlock()
}
