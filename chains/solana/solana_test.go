package solana

import (
	"encoding/base64"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/layer-3/walletauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	address := key.PublicKey().String()

	msg := "example.com wants you to sign in with your Solana account"
	sig, err := key.Sign([]byte(msg))
	require.NoError(t, err)

	require.NoError(t, Verify(msg, EncodeSignature(sig[:]), address))
	require.NoError(t, Verify(msg, base64.StdEncoding.EncodeToString(sig[:]), address))

	assert.ErrorIs(t, Verify("other message", EncodeSignature(sig[:]), address), core.ErrInvalidSignature)
	assert.ErrorIs(t, Verify(msg, "abc", address), core.ErrInvalidSignature)
	assert.ErrorIs(t, Verify(msg, EncodeSignature(sig[:]), "not-an-address"), core.ErrInvalidAddress)
}

func TestNormalizeAddress(t *testing.T) {
	addr, err := NormalizeAddress(" 11111111111111111111111111111111 ")
	require.NoError(t, err)
	assert.Equal(t, "11111111111111111111111111111111", addr)

	_, err = NormalizeAddress("0xabc")
	assert.ErrorIs(t, err, core.ErrInvalidAddress)
}
