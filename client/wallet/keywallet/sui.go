package keywallet

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"

	"github.com/layer-3/walletauth/chains/sui"
	"github.com/layer-3/walletauth/client/wallet"
)

// Sui signs personal messages with an ed25519 keypair
type Sui struct {
	key  ed25519.PrivateKey
	opts options

	mu        sync.Mutex
	connected bool
}

func NewSui(key ed25519.PrivateKey, opts ...Option) *Sui {
	return &Sui{key: key, opts: newOptions(opts)}
}

// Address is the Sui address of the key
func (w *Sui) Address() string {
	return sui.AddressFromPublicKey(sui.SchemeEd25519, w.key.Public().(ed25519.PublicKey))
}

func (w *Sui) account() wallet.SuiAccount {
	return wallet.SuiAccount{
		Address:   w.Address(),
		PublicKey: w.key.Public().(ed25519.PublicKey),
		Chains:    []string{w.opts.suiChain},
	}
}

func (w *Sui) Connect(ctx context.Context) ([]wallet.SuiAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !w.opts.approve("standard:connect") {
		return nil, ErrUserRejected
	}
	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()
	return []wallet.SuiAccount{w.account()}, nil
}

func (w *Sui) Accounts() []wallet.SuiAccount {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return nil
	}
	return []wallet.SuiAccount{w.account()}
}

func (w *Sui) SignPersonalMessage(ctx context.Context, message []byte, account wallet.SuiAccount) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(w.Accounts()) == 0 || account.Address != w.Address() {
		return "", errors.New("account not authorized")
	}
	if !w.opts.approve("sui:signPersonalMessage") {
		return "", ErrUserRejected
	}
	return sui.SignPersonalMessage(w.key, message), nil
}

func (w *Sui) Disconnect(context.Context) error {
	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()
	return nil
}
