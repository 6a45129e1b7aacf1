package authflow

import (
	"errors"

	"github.com/layer-3/walletauth/client/wallet"
	"github.com/layer-3/walletauth/core"
)

var (
	ErrInvalidTransition = errors.New("action not allowed in the current state")
	ErrSignInProgress    = errors.New("a signature request is already in flight")
	ErrUnknownProvider   = errors.New("no adapter for provider")
	ErrUnsafeChallenge   = errors.New("challenge message failed the safety check")
)

var humanMessages = []struct {
	err error
	msg string
}{
	{ErrUnsafeChallenge, "The sign-in message looks unsafe and was not shown for signing."},
	{ErrUnknownProvider, "This wallet is not supported."},
	{core.ErrChallengeExpired, "The sign-in request expired. Please try again."},
	{core.ErrNonceConsumed, "This sign-in request was already used. Please try again."},
	{core.ErrChallengeNotFound, "The sign-in request is no longer valid. Please try again."},
	{core.ErrInvalidSignature, "The signature could not be verified."},
	{core.ErrAddressMismatch, "The connected wallet does not match the sign-in request."},
	{core.ErrChainMismatch, "The wallet switched networks during sign-in. Please try again."},
	{core.ErrMessageMismatch, "The signed message does not match the sign-in request."},
	{core.ErrUnsupportedChain, "This network is not supported."},
	{core.ErrUnsupportedProvider, "This wallet is not supported."},
	{core.ErrInvalidAddress, "The wallet returned an invalid address."},
}

func humanMessage(err error) string {
	var we *wallet.Error
	if errors.As(err, &we) && we.Message != "" {
		return we.Message
	}
	for _, m := range humanMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Authentication failed: " + err.Error()
}
