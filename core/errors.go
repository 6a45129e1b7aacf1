package core

import "errors"

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidChallenge = errors.New("invalid challenge")

	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge has expired")
	ErrNonceConsumed     = errors.New("nonce already consumed")
	ErrAddressMismatch   = errors.New("address does not match challenge")
	ErrChainMismatch     = errors.New("chain does not match challenge")
	ErrProviderMismatch  = errors.New("provider does not match challenge")
	ErrMessageMismatch   = errors.New("message does not match challenge")

	ErrInvalidAddress      = errors.New("invalid wallet address")
	ErrUnsupportedChain    = errors.New("unsupported chain")
	ErrUnsupportedProvider = errors.New("unsupported wallet provider")

	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidUsername        = errors.New("invalid username")
	ErrUsernameTaken          = errors.New("username already taken")
	ErrTermsNotAccepted       = errors.New("terms and privacy policy must be accepted")
	ErrProfileAlreadyComplete = errors.New("profile already completed")
	ErrProfilePending         = errors.New("profile completion required")

	ErrWalletNotFound        = errors.New("wallet not found")
	ErrWalletLinkedElsewhere = errors.New("wallet already linked to another account")
	ErrLastWallet            = errors.New("cannot unlink the only connected wallet")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrChallengeExpired, "challenge_expired"},
	{ErrNonceConsumed, "nonce_consumed"},
	{ErrChallengeNotFound, "challenge_not_found"},
	{ErrInvalidSignature, "invalid_signature"},
	{ErrAddressMismatch, "address_mismatch"},
	{ErrChainMismatch, "chain_mismatch"},
	{ErrProviderMismatch, "provider_mismatch"},
	{ErrMessageMismatch, "message_mismatch"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrUnsupportedChain, "unsupported_chain"},
	{ErrUnsupportedProvider, "unsupported_provider"},
	{ErrUserNotFound, "user_not_found"},
	{ErrInvalidUsername, "invalid_username"},
	{ErrUsernameTaken, "username_taken"},
	{ErrTermsNotAccepted, "terms_not_accepted"},
	{ErrProfileAlreadyComplete, "profile_already_complete"},
	{ErrProfilePending, "profile_pending"},
	{ErrWalletNotFound, "wallet_not_found"},
	{ErrWalletLinkedElsewhere, "wallet_linked_elsewhere"},
	{ErrLastWallet, "last_wallet"},
	{ErrTokenExpired, "token_expired"},
	{ErrTokenInvalidated, "token_invalidated"},
	{ErrInvalidToken, "invalid_token"},
	{ErrInvalidChallenge, "invalid_challenge"},
}

// Code returns the stable API error code for err, or "internal_error"
func Code(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal_error"
}

// ErrorForCode is the inverse of Code. Unknown codes yield nil.
func ErrorForCode(code string) error {
	for _, e := range errorCodes {
		if e.code == code {
			return e.err
		}
	}
	return nil
}
