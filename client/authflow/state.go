package authflow

import "github.com/layer-3/walletauth/core"

type State int

const (
	StateMain State = iota
	StateWalletConnecting
	StateWalletSigning
	StateWalletSuccess
	StateWalletError
)

func (s State) String() string {
	switch s {
	case StateMain:
		return "main"
	case StateWalletConnecting:
		return "wallet_connecting"
	case StateWalletSigning:
		return "wallet_signing"
	case StateWalletSuccess:
		return "wallet_success"
	case StateWalletError:
		return "wallet_error"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the machine state handed to subscribers
type Snapshot struct {
	State    State
	Provider core.ProviderID
	Chain    core.ChainID
	Address  string
	// PairingURI is set while an out-of-band adapter waits for the wallet app
	PairingURI string
	Challenge  *core.Challenge
	// Warnings lists message safety issues that were let through
	Warnings []string
	Result   *core.WalletAuthResult
	Error    string
	Err      error
}
