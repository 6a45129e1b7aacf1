package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

// RedisChallengeStore shares challenges between instances. Consumption is
// decided by SETNX on a per-nonce marker, which Redis serializes.
type RedisChallengeStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisChallengeStore creates a new Redis challenge store
func NewRedisChallengeStore(client *redis.Client, retention time.Duration) *RedisChallengeStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisChallengeStore{
		client:    client,
		prefix:    "walletauth:challenge:",
		retention: retention,
	}
}

var _ ports.ChallengeStore = (*RedisChallengeStore)(nil)

type storedChallenge struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Chain     string    `json:"chain"`
	Provider  string    `json:"provider"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	Domain    string    `json:"domain"`
	URI       string    `json:"uri"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *RedisChallengeStore) challengeKey(nonce string) string {
	return s.prefix + nonce
}

func (s *RedisChallengeStore) consumedKey(nonce string) string {
	return s.prefix + nonce + ":consumed"
}

// Save stores a challenge under its nonce
func (s *RedisChallengeStore) Save(ctx context.Context, challenge *core.Challenge) error {
	payload, err := json.Marshal(storedChallenge{
		ID:        challenge.ID,
		Address:   challenge.Address,
		Chain:     string(challenge.Chain),
		Provider:  string(challenge.Provider),
		Nonce:     challenge.Nonce,
		Message:   challenge.Message,
		Domain:    challenge.Domain,
		URI:       challenge.URI,
		IssuedAt:  challenge.IssuedAt,
		ExpiresAt: challenge.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	ttl := time.Until(challenge.ExpiresAt) + s.retention
	ok, err := s.client.SetNX(ctx, s.challengeKey(challenge.Nonce), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	if !ok {
		return core.ErrInvalidChallenge
	}

	return nil
}

// Consume returns the challenge and marks its nonce used
func (s *RedisChallengeStore) Consume(ctx context.Context, nonce string) (*core.Challenge, error) {
	raw, err := s.client.Get(ctx, s.challengeKey(nonce)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	var sc storedChallenge
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}

	ttl := time.Until(sc.ExpiresAt) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	won, err := s.client.SetNX(ctx, s.consumedKey(nonce), "1", ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}
	if !won {
		return nil, core.ErrNonceConsumed
	}

	return &core.Challenge{
		ID:        sc.ID,
		Address:   sc.Address,
		Chain:     core.ChainID(sc.Chain),
		Provider:  core.ProviderID(sc.Provider),
		Nonce:     sc.Nonce,
		Message:   sc.Message,
		Domain:    sc.Domain,
		URI:       sc.URI,
		IssuedAt:  sc.IssuedAt,
		ExpiresAt: sc.ExpiresAt,
	}, nil
}
