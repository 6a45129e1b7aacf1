package wallet

import (
	"context"

	"github.com/layer-3/walletauth/chains/solana"
	"github.com/layer-3/walletauth/core"
)

// SolanaAdapter signs in with Phantom
type SolanaAdapter struct {
	env   *Environment
	chain core.ChainID
}

// NewSolanaAdapter binds the adapter to a cluster since Phantom does not
// report one
func NewSolanaAdapter(env *Environment, chain core.ChainID) *SolanaAdapter {
	if chain == "" {
		chain = core.ChainSolana
	}
	return &SolanaAdapter{env: env, chain: chain}
}

func (a *SolanaAdapter) ID() core.ProviderID { return core.ProviderPhantom }
func (a *SolanaAdapter) Family() core.Family { return core.FamilySolana }

func (a *SolanaAdapter) IsInstalled() bool {
	return a.env.Solana != nil
}

func (a *SolanaAdapter) Connect(ctx context.Context) (string, error) {
	p := a.env.Solana
	if p == nil {
		return "", a.env.missing(ctx, a.ID())
	}
	pk, err := p.Connect(ctx)
	if err != nil {
		return "", normalize(a.ID(), opConnect, err)
	}
	if pk.IsZero() {
		return "", lockedError(a.ID())
	}
	return pk.String(), nil
}

func (a *SolanaAdapter) Chain(context.Context) (core.ChainID, bool) {
	if a.env.Solana == nil {
		return "", false
	}
	if _, ok := a.env.Solana.PublicKey(); !ok {
		return "", false
	}
	return a.chain, true
}

func (a *SolanaAdapter) SignMessage(ctx context.Context, text string) (string, error) {
	p := a.env.Solana
	if p == nil {
		return "", a.env.missing(ctx, a.ID())
	}
	if _, ok := p.PublicKey(); !ok {
		return "", &Error{Kind: KindLocked, Provider: a.ID(), Message: "wallet not connected"}
	}
	sig, err := p.SignMessage(ctx, []byte(text))
	if err != nil {
		return "", normalize(a.ID(), opSign, err)
	}
	return solana.EncodeSignature(sig), nil
}

func (a *SolanaAdapter) Disconnect(ctx context.Context) error {
	if a.env.Solana == nil {
		return nil
	}
	return normalize(a.ID(), opOther, a.env.Solana.Disconnect(ctx))
}
