package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// DefaultRetention is how long a challenge is remembered after it expires, so
// late submissions are reported as expired or replayed rather than unknown
const DefaultRetention = 10 * time.Minute

type challengeEntry struct {
	challenge core.Challenge
	consumed  bool
	purgeAt   time.Time
}

// MemoryChallengeStore keeps challenges in process memory. Only suitable for
// single-instance deployments and tests.
type MemoryChallengeStore struct {
	mu        sync.Mutex
	entries   map[string]*challengeEntry
	retention time.Duration
	now       func() time.Time
}

// NewMemoryChallengeStore creates a new in-memory challenge store
func NewMemoryChallengeStore(retention time.Duration) *MemoryChallengeStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryChallengeStore{
		entries:   make(map[string]*challengeEntry),
		retention: retention,
		now:       time.Now,
	}
}

var _ ports.ChallengeStore = (*MemoryChallengeStore)(nil)

// Save stores a challenge under its nonce
func (s *MemoryChallengeStore) Save(ctx context.Context, challenge *core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for nonce, e := range s.entries {
		if now.After(e.purgeAt) {
			delete(s.entries, nonce)
		}
	}

	if _, exists := s.entries[challenge.Nonce]; exists {
		return core.ErrInvalidChallenge
	}

	s.entries[challenge.Nonce] = &challengeEntry{
		challenge: *challenge,
		purgeAt:   challenge.ExpiresAt.Add(s.retention),
	}
	return nil
}

// Consume returns the challenge and marks its nonce used
func (s *MemoryChallengeStore) Consume(ctx context.Context, nonce string) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[nonce]
	if !ok || s.now().After(e.purgeAt) {
		return nil, core.ErrChallengeNotFound
	}
	if e.consumed {
		return nil, core.ErrNonceConsumed
	}
	e.consumed = true

	c := e.challenge
	return &c, nil
}
