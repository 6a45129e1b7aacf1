// Package verifier binds the per-family signature schemes to
// ports.SignatureVerifier and keeps them in a registry keyed by family.
package verifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/layer-3/walletauth/chains/evm"
	"github.com/layer-3/walletauth/chains/solana"
	"github.com/layer-3/walletauth/chains/sui"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

type schemeVerifier struct {
	family    core.Family
	normalize func(string) (string, error)
	verify    func(message, signature, address string) error
}

func (v *schemeVerifier) Family() core.Family { return v.family }

func (v *schemeVerifier) NormalizeAddress(address string) (string, error) {
	return v.normalize(address)
}

func (v *schemeVerifier) Verify(ctx context.Context, message, signature, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.verify(message, signature, address)
}

// EVM verifies EIP-191 personal_sign signatures
func EVM() ports.SignatureVerifier {
	return &schemeVerifier{family: core.FamilyEVM, normalize: evm.NormalizeAddress, verify: evm.Verify}
}

// Solana verifies ed25519 signatures over the raw message bytes
func Solana() ports.SignatureVerifier {
	return &schemeVerifier{family: core.FamilySolana, normalize: solana.NormalizeAddress, verify: solana.Verify}
}

// Sui verifies wallet-standard personal message signatures
func Sui() ports.SignatureVerifier {
	return &schemeVerifier{family: core.FamilySui, normalize: sui.NormalizeAddress, verify: sui.Verify}
}

// Registry maps chain families to verifiers
type Registry struct {
	verifiers map[core.Family]ports.SignatureVerifier
	mu        sync.RWMutex
}

// NewRegistry creates a registry holding the given verifiers
func NewRegistry(verifiers ...ports.SignatureVerifier) *Registry {
	r := &Registry{verifiers: make(map[core.Family]ports.SignatureVerifier)}
	for _, v := range verifiers {
		r.Register(v)
	}
	return r
}

// Default returns a registry with every supported family
func Default() *Registry {
	return NewRegistry(EVM(), Solana(), Sui())
}

// Register adds or replaces the verifier for its family
func (r *Registry) Register(v ports.SignatureVerifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[v.Family()] = v
}

// For returns the verifier for the chain's family
func (r *Registry) For(chain core.ChainID) (ports.SignatureVerifier, error) {
	if !chain.Valid() {
		return nil, core.ErrUnsupportedChain
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.verifiers[chain.Family()]
	if !ok {
		return nil, fmt.Errorf("no verifier for family %s: %w", chain.Family(), core.ErrUnsupportedChain)
	}
	return v, nil
}
