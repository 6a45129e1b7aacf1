package ports

import (
	"context"
	"time"

	"github.com/layer-3/walletauth/core"
)

// RevocationStore remembers refresh token ids that must no longer be honoured.
// Access tokens issued alongside a revoked refresh token die with it.
type RevocationStore interface {
	// Revoke records refreshID at least until the token it names expires.
	// It reports whether this call did the revoking: of any number of
	// concurrent calls for the same id exactly one gets true.
	Revoke(ctx context.Context, refreshID string, until time.Time) (bool, error)
	IsRevoked(ctx context.Context, refreshID string) (bool, error)
}

// ChallengeStore keeps issued challenges until they are consumed or expire
type ChallengeStore interface {
	Save(ctx context.Context, challenge *core.Challenge) error

	// Consume returns the challenge for nonce and marks it used. Exactly one
	// of any number of concurrent calls for the same nonce succeeds; the rest
	// get core.ErrNonceConsumed. Unknown nonces yield core.ErrChallengeNotFound.
	Consume(ctx context.Context, nonce string) (*core.Challenge, error)
}
