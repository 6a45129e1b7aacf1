// Package evm implements address handling and EIP-191 personal_sign
// verification for EVM chains.
package evm

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/core"
)

// SignatureLength is the size of an [R || S || V] signature
const SignatureLength = crypto.SignatureLength

// NormalizeAddress returns the EIP-55 checksummed form of a hex address
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", core.ErrInvalidAddress
	}
	return common.HexToAddress(address).Hex(), nil
}

// Recover returns the address that produced a personal_sign signature over message
func Recover(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", SignatureLength, core.ErrInvalidSignature)
	}

	// Wallets return V as 27/28, crypto.SigToPub expects 0/1
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", core.ErrInvalidSignature)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that signature is a personal_sign over message by address
func Verify(message, signature, address string) error {
	if !common.IsHexAddress(address) {
		return core.ErrInvalidAddress
	}

	recovered, err := Recover(message, signature)
	if err != nil {
		return err
	}

	if recovered != common.HexToAddress(address) {
		return core.ErrInvalidSignature
	}

	return nil
}

// SignText produces a personal_sign signature with V in 27/28 form
func SignText(key *ecdsa.PrivateKey, message []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
