// Package keywallet implements the wallet provider interfaces on top of local
// private keys, for command line logins, bots and tests.
package keywallet

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RPCError is an EIP-1193 provider error
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }

// ErrUserRejected is what the Solana and Sui key wallets return when a
// request is declined
var ErrUserRejected = errors.New("User rejected the request")

// Approver stands in for the user prompt. It is asked once per prompting
// request.
type Approver func(method string) bool

type options struct {
	approve  Approver
	chainID  uint64
	flags    map[string]bool
	suiChain string
}

type Option func(*options)

// WithApprover replaces the default of approving every request
func WithApprover(fn Approver) Option {
	return func(o *options) { o.approve = fn }
}

// WithChainID sets the EVM chain the wallet reports, 1 by default
func WithChainID(id uint64) Option {
	return func(o *options) { o.chainID = id }
}

// WithFlags sets the identity flags an injected EVM provider exposes
func WithFlags(flags map[string]bool) Option {
	return func(o *options) { o.flags = flags }
}

// WithSuiChain sets the wallet-standard chain of the Sui account
func WithSuiChain(chain string) Option {
	return func(o *options) { o.suiChain = chain }
}

func newOptions(opts []Option) options {
	o := options{
		approve:  func(string) bool { return true },
		chainID:  1,
		suiChain: "sui:mainnet",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// assign copies v into result the way a JSON-RPC client decodes a response
func assign(result, v any) error {
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return json.Unmarshal(raw, result)
}
