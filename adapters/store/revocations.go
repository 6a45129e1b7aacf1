package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

// MinRevocationTTL keeps already expired tokens revoked for a while so that
// clock skew between instances cannot revive them
const MinRevocationTTL = time.Hour

func revocationTTL(until, now time.Time) time.Duration {
	if ttl := until.Sub(now); ttl > MinRevocationTTL {
		return ttl
	}
	return MinRevocationTTL
}

var _ ports.RevocationStore = (*MemoryRevocations)(nil)

// MemoryRevocations keeps revoked refresh ids in process memory
type MemoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryRevocations) Revoke(_ context.Context, refreshID string, until time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, forget := range s.revoked {
		if !now.Before(forget) {
			delete(s.revoked, id)
		}
	}

	if _, ok := s.revoked[refreshID]; ok {
		return false, nil
	}
	s.revoked[refreshID] = now.Add(revocationTTL(until, now))
	return true, nil
}

func (s *MemoryRevocations) IsRevoked(_ context.Context, refreshID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	forget, ok := s.revoked[refreshID]
	return ok && s.now().Before(forget), nil
}

// RedisRevocations shares revoked refresh ids between instances. Entries
// expire on their own once the token could no longer be used.
type RedisRevocations struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var _ ports.RevocationStore = (*RedisRevocations)(nil)

func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{
		client: client,
		prefix: "walletauth:revoked:",
		now:    time.Now,
	}
}

func (s *RedisRevocations) Revoke(ctx context.Context, refreshID string, until time.Time) (bool, error) {
	ttl := revocationTTL(until, s.now())
	set, err := s.client.SetNX(ctx, s.prefix+refreshID, strconv.FormatInt(until.Unix(), 10), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return set, nil
}

func (s *RedisRevocations) IsRevoked(ctx context.Context, refreshID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+refreshID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n == 1, nil
}
