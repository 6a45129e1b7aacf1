package ports

import (
	"context"

	"github.com/layer-3/walletauth/core"
)

// SignatureVerifier checks a wallet signature for one chain family
type SignatureVerifier interface {
	Family() core.Family
	NormalizeAddress(address string) (string, error)
	Verify(ctx context.Context, message, signature, address string) error
}

// SignatureVerifiers resolves the verifier for a chain
type SignatureVerifiers interface {
	For(chain core.ChainID) (SignatureVerifier, error)
}
