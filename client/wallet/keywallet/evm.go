package keywallet

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/chains/evm"
)

// EVM answers EIP-1193 requests with a secp256k1 key
type EVM struct {
	key     *ecdsa.PrivateKey
	address string
	opts    options

	mu        sync.Mutex
	connected bool
}

func NewEVM(key *ecdsa.PrivateKey, opts ...Option) *EVM {
	return &EVM{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		opts:    newOptions(opts),
	}
}

// Address is the checksummed account address
func (w *EVM) Address() string { return w.address }

func (w *EVM) Flags() map[string]bool { return w.opts.flags }

func (w *EVM) Request(ctx context.Context, result any, method string, params ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch method {
	case "eth_requestAccounts":
		if !w.opts.approve(method) {
			return &RPCError{Code: 4001, Message: "User rejected the request."}
		}
		w.setConnected(true)
		return assign(result, []string{w.address})

	case "eth_accounts":
		if !w.isConnected() {
			return assign(result, []string{})
		}
		return assign(result, []string{w.address})

	case "eth_chainId":
		return assign(result, hexutil.EncodeUint64(w.opts.chainID))

	case "personal_sign":
		return w.personalSign(method, result, params)

	case "wallet_revokePermissions":
		w.setConnected(false)
		return assign(result, nil)

	default:
		return &RPCError{Code: 4200, Message: "The requested method is not supported by this provider."}
	}
}

func (w *EVM) personalSign(method string, result any, params []any) error {
	if len(params) != 2 {
		return &RPCError{Code: -32602, Message: "personal_sign expects a message and an address"}
	}
	data, _ := params[0].(string)
	address, _ := params[1].(string)

	if !w.isConnected() || !strings.EqualFold(address, w.address) {
		return &RPCError{Code: 4100, Message: "The requested account has not been authorized by the user."}
	}
	if !w.opts.approve(method) {
		return &RPCError{Code: 4001, Message: "User rejected the request."}
	}

	message := []byte(data)
	if decoded, err := hexutil.Decode(data); err == nil {
		message = decoded
	}

	sig, err := evm.SignText(w.key, message)
	if err != nil {
		return err
	}
	return assign(result, sig)
}

func (w *EVM) isConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *EVM) setConnected(v bool) {
	w.mu.Lock()
	w.connected = v
	w.mu.Unlock()
}
