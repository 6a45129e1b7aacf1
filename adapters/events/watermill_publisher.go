package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/walletauth/ports"
)

const (
	DefaultLogoutTopic = "walletauth.logout"
	DefaultWalletTopic = "walletauth.wallet"
)

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address string `json:"address"`
	TokenID string `json:"token_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher   message.Publisher
	logoutTopic string
	walletTopic string
}

// NewWatermillPublisher creates a new Watermill publisher. Empty topics fall
// back to the defaults.
func NewWatermillPublisher(publisher message.Publisher, logoutTopic, walletTopic string) ports.EventPublisher {
	if logoutTopic == "" {
		logoutTopic = DefaultLogoutTopic
	}
	if walletTopic == "" {
		walletTopic = DefaultWalletTopic
	}
	return &WatermillPublisher{
		publisher:   publisher,
		logoutTopic: logoutTopic,
		walletTopic: walletTopic,
	}
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, tokenID string) error {
	event := LogoutEvent{
		Address: address,
		TokenID: tokenID,
	}

	return p.publish(ctx, p.logoutTopic, tokenID, event)
}

// PublishWalletEvent publishes a wallet lifecycle event keyed by user
func (p *WatermillPublisher) PublishWalletEvent(ctx context.Context, event ports.WalletEvent) error {
	return p.publish(ctx, p.walletTopic, watermill.NewUUID(), event)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, id string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishLogout(context.Context, string, string) error { return nil }

func (NopPublisher) PublishWalletEvent(context.Context, ports.WalletEvent) error { return nil }
