package keywallet

import (
	"context"
	"errors"
	"sync"

	solanago "github.com/gagliardetto/solana-go"
)

// Solana signs messages with an ed25519 keypair
type Solana struct {
	key  solanago.PrivateKey
	opts options

	mu        sync.Mutex
	connected bool
}

func NewSolana(key solanago.PrivateKey, opts ...Option) *Solana {
	return &Solana{key: key, opts: newOptions(opts)}
}

func (w *Solana) Connect(ctx context.Context) (solanago.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return solanago.PublicKey{}, err
	}
	if !w.opts.approve("connect") {
		return solanago.PublicKey{}, ErrUserRejected
	}
	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()
	return w.key.PublicKey(), nil
}

func (w *Solana) PublicKey() (solanago.PublicKey, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return solanago.PublicKey{}, false
	}
	return w.key.PublicKey(), true
}

func (w *Solana) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := w.PublicKey(); !ok {
		return nil, errors.New("wallet not connected")
	}
	if !w.opts.approve("signMessage") {
		return nil, ErrUserRejected
	}
	sig, err := w.key.Sign(message)
	if err != nil {
		return nil, err
	}
	return sig[:], nil
}

func (w *Solana) Disconnect(context.Context) error {
	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()
	return nil
}
