// Package sui implements Sui address derivation and personal message
// signature verification.
//
// A personal message is signed over blake2b-256(intent || bcs(message)) where
// intent is [3, 0, 0]. Serialized signatures are base64(flag || sig || pubkey).
package sui

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/core"
	"golang.org/x/crypto/blake2b"
)

// Scheme is the signature scheme flag byte
type Scheme byte

const (
	SchemeEd25519   Scheme = 0x00
	SchemeSecp256k1 Scheme = 0x01
)

const (
	addressHexLength = 64

	secp256k1PublicKeySize = 33
	secp256k1SigSize       = 64
)

var personalMessageIntent = []byte{3, 0, 0}

// NormalizeAddress returns a 0x-prefixed, lowercase, zero-padded 32-byte address
func NormalizeAddress(address string) (string, error) {
	a := strings.ToLower(strings.TrimSpace(address))
	a = strings.TrimPrefix(a, "0x")
	if a == "" || len(a) > addressHexLength {
		return "", core.ErrInvalidAddress
	}
	if _, err := hex.DecodeString(padHex(a)); err != nil {
		return "", core.ErrInvalidAddress
	}
	return "0x" + strings.Repeat("0", addressHexLength-len(a)) + a, nil
}

func padHex(a string) string {
	if len(a)%2 == 1 {
		return "0" + a
	}
	return a
}

// AddressFromPublicKey derives the address of a public key for a scheme
func AddressFromPublicKey(scheme Scheme, pub []byte) string {
	buf := make([]byte, 0, 1+len(pub))
	buf = append(buf, byte(scheme))
	buf = append(buf, pub...)
	sum := blake2b.Sum256(buf)
	return "0x" + hex.EncodeToString(sum[:])
}

// PersonalMessageDigest is the 32-byte digest a wallet signs for a personal message
func PersonalMessageDigest(message []byte) [32]byte {
	buf := make([]byte, 0, len(personalMessageIntent)+binaryUvarintLen(len(message))+len(message))
	buf = append(buf, personalMessageIntent...)
	buf = appendULEB128(buf, uint64(len(message)))
	buf = append(buf, message...)
	return blake2b.Sum256(buf)
}

func appendULEB128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		return append(buf, b)
	}
}

func binaryUvarintLen(n int) int {
	l := 1
	for n >= 0x80 {
		n >>= 7
		l++
	}
	return l
}

// Signature is a parsed serialized signature
type Signature struct {
	Scheme    Scheme
	Signature []byte
	PublicKey []byte
}

// ParseSignature decodes base64(flag || sig || pubkey)
func ParseSignature(serialized string) (Signature, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(serialized))
	if err != nil || len(raw) == 0 {
		return Signature{}, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}

	scheme := Scheme(raw[0])
	body := raw[1:]
	switch scheme {
	case SchemeEd25519:
		if len(body) != ed25519.SignatureSize+ed25519.PublicKeySize {
			return Signature{}, fmt.Errorf("malformed ed25519 signature: %w", core.ErrInvalidSignature)
		}
		return Signature{
			Scheme:    scheme,
			Signature: body[:ed25519.SignatureSize],
			PublicKey: body[ed25519.SignatureSize:],
		}, nil
	case SchemeSecp256k1:
		if len(body) != secp256k1SigSize+secp256k1PublicKeySize {
			return Signature{}, fmt.Errorf("malformed secp256k1 signature: %w", core.ErrInvalidSignature)
		}
		return Signature{
			Scheme:    scheme,
			Signature: body[:secp256k1SigSize],
			PublicKey: body[secp256k1SigSize:],
		}, nil
	default:
		return Signature{}, fmt.Errorf("unsupported signature scheme 0x%02x: %w", byte(scheme), core.ErrInvalidSignature)
	}
}

// Serialize renders the signature in wallet-standard form
func (s Signature) Serialize() string {
	buf := make([]byte, 0, 1+len(s.Signature)+len(s.PublicKey))
	buf = append(buf, byte(s.Scheme))
	buf = append(buf, s.Signature...)
	buf = append(buf, s.PublicKey...)
	return base64.StdEncoding.EncodeToString(buf)
}

// Verify checks a serialized personal message signature against an address
func Verify(message, signature, address string) error {
	expected, err := NormalizeAddress(address)
	if err != nil {
		return err
	}

	sig, err := ParseSignature(signature)
	if err != nil {
		return err
	}

	if AddressFromPublicKey(sig.Scheme, sig.PublicKey) != expected {
		return fmt.Errorf("public key does not belong to address: %w", core.ErrInvalidSignature)
	}

	digest := PersonalMessageDigest([]byte(message))

	var ok bool
	switch sig.Scheme {
	case SchemeEd25519:
		ok = ed25519.Verify(ed25519.PublicKey(sig.PublicKey), digest[:], sig.Signature)
	case SchemeSecp256k1:
		h := sha256.Sum256(digest[:])
		ok = crypto.VerifySignature(sig.PublicKey, h[:], sig.Signature)
	}
	if !ok {
		return core.ErrInvalidSignature
	}

	return nil
}

// SignPersonalMessage signs a personal message with an ed25519 key
func SignPersonalMessage(key ed25519.PrivateKey, message []byte) string {
	digest := PersonalMessageDigest(message)
	return Signature{
		Scheme:    SchemeEd25519,
		Signature: ed25519.Sign(key, digest[:]),
		PublicKey: key.Public().(ed25519.PublicKey),
	}.Serialize()
}
