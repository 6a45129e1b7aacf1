package ports

import (
	"context"
	"time"
)

// WalletEventType names a wallet lifecycle event
type WalletEventType string

const (
	EventWalletAuthenticated WalletEventType = "wallet.authenticated"
	EventWalletLinked        WalletEventType = "wallet.linked"
	EventWalletUnlinked      WalletEventType = "wallet.unlinked"
	EventProfileCompleted    WalletEventType = "profile.completed"
)

// WalletEvent is published after a state change of a user's wallets or profile
type WalletEvent struct {
	Type     WalletEventType `json:"type"`
	UserID   string          `json:"user_id"`
	Address  string          `json:"address,omitempty"`
	Chain    string          `json:"chain,omitempty"`
	Provider string          `json:"provider,omitempty"`
	At       time.Time       `json:"at"`
}

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogout(ctx context.Context, address string, tokenID string) error
	PublishWalletEvent(ctx context.Context, event WalletEvent) error
}
