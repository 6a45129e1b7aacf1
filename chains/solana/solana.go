// Package solana implements address handling and ed25519 message signature
// verification for Solana wallets.
package solana

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/layer-3/walletauth/core"
	"github.com/mr-tron/base58"
)

// NormalizeAddress validates a base58 ed25519 public key
func NormalizeAddress(address string) (string, error) {
	pk, err := solanago.PublicKeyFromBase58(strings.TrimSpace(address))
	if err != nil {
		return "", core.ErrInvalidAddress
	}
	return pk.String(), nil
}

// DecodeSignature accepts base58 (the wallet default), base64 or 0x-hex
func DecodeSignature(signature string) (solanago.Signature, error) {
	signature = strings.TrimSpace(signature)

	var raw []byte
	var err error
	switch {
	case strings.HasPrefix(signature, "0x"):
		raw, err = hexutil.Decode(signature)
	default:
		raw, err = base58.Decode(signature)
		if err != nil || len(raw) != ed25519.SignatureSize {
			raw, err = base64.StdEncoding.DecodeString(signature)
		}
	}
	if err != nil {
		return solanago.Signature{}, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(raw) != ed25519.SignatureSize {
		return solanago.Signature{}, fmt.Errorf("signature must be %d bytes: %w", ed25519.SignatureSize, core.ErrInvalidSignature)
	}

	var sig solanago.Signature
	copy(sig[:], raw)
	return sig, nil
}

// EncodeSignature renders a raw signature the way wallets hand it to dapps
func EncodeSignature(sig []byte) string {
	return base58.Encode(sig)
}

// Verify checks an ed25519 signature over the UTF-8 message bytes
func Verify(message, signature, address string) error {
	pk, err := solanago.PublicKeyFromBase58(strings.TrimSpace(address))
	if err != nil {
		return core.ErrInvalidAddress
	}

	sig, err := DecodeSignature(signature)
	if err != nil {
		return err
	}

	if !sig.Verify(pk, []byte(message)) {
		return core.ErrInvalidSignature
	}

	return nil
}
