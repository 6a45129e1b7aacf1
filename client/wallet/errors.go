package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/layer-3/walletauth/core"
)

// Kind classifies a wallet failure independent of the provider that raised it
type Kind int

const (
	KindUnknown Kind = iota
	KindRejected
	KindUnavailable
	KindPending
	KindLocked
	KindRedirected
)

func (k Kind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindUnavailable:
		return "unavailable"
	case KindPending:
		return "pending"
	case KindLocked:
		return "locked"
	case KindRedirected:
		return "redirected"
	default:
		return "unknown"
	}
}

// EIP-1193 provider error codes
const (
	CodeUserRejected   = 4001
	CodeUnauthorized   = 4100
	CodeUnsupported    = 4200
	CodeDisconnected   = 4900
	CodeChainNotLinked = 4901
	CodeRequestPending = -32002
)

// Error is the normalized form of every failure an adapter returns
type Error struct {
	Kind     Kind
	Provider core.ProviderID
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind, so errors.Is(err, ErrRejected) holds for any
// rejection
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Provider == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrRejected    = &Error{Kind: KindRejected}
	ErrUnavailable = &Error{Kind: KindUnavailable}
	ErrPending     = &Error{Kind: KindPending}
	ErrLocked      = &Error{Kind: KindLocked}
	ErrRedirected  = &Error{Kind: KindRedirected}
)

// KindOf returns the kind of a wallet error, KindUnknown for anything else
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindUnknown
}

type operation int

const (
	opConnect operation = iota
	opSign
	opOther
)

func rejectedMessage(op operation) string {
	switch op {
	case opConnect:
		return "Connection rejected"
	case opSign:
		return "Signature rejected"
	default:
		return "Request rejected"
	}
}

// normalize converts a raw provider failure once, at the adapter boundary
func normalize(provider core.ProviderID, op operation, err error) error {
	if err == nil {
		return nil
	}

	var we *Error
	if errors.As(err, &we) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindUnknown, Provider: provider, Message: "request cancelled", Err: err}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUserRejected, CodeUnauthorized:
			return &Error{Kind: KindRejected, Provider: provider, Message: rejectedMessage(op), Err: err}
		case CodeRequestPending:
			return &Error{Kind: KindPending, Provider: provider, Message: "a request is already pending in the wallet", Err: err}
		case CodeDisconnected, CodeChainNotLinked:
			return &Error{Kind: KindUnavailable, Provider: provider, Message: "wallet is disconnected", Err: err}
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "user rejected") || strings.Contains(msg, "notallowederror") {
		return &Error{Kind: KindRejected, Provider: provider, Message: rejectedMessage(op), Err: err}
	}

	return &Error{Kind: KindUnknown, Provider: provider, Message: err.Error(), Err: err}
}

func lockedError(provider core.ProviderID) error {
	return &Error{Kind: KindLocked, Provider: provider, Message: "wallet locked"}
}
