package ports

import (
	"context"
	"time"

	"github.com/layer-3/walletauth/core"
)

// AccountRepository persists users and their connected wallets. Wallets are
// unique per (chain family, address).
type AccountRepository interface {
	// CreateUserWithWallet stores a new user together with its first wallet
	CreateUserWithWallet(ctx context.Context, user *core.User, wallet *core.ConnectedWallet) error
	GetUser(ctx context.Context, userID string) (*core.User, error)

	// CompleteProfile sets username, full name and consent timestamps and
	// marks the profile complete. Returns core.ErrUsernameTaken on conflict.
	CompleteProfile(ctx context.Context, userID string, update core.ProfileUpdate, at time.Time) (*core.User, error)

	FindWallet(ctx context.Context, family core.Family, address string) (*core.ConnectedWallet, error)
	ListWallets(ctx context.Context, userID string) ([]*core.ConnectedWallet, error)

	// AddWallet links a wallet; a primary wallet demotes the user's others
	AddWallet(ctx context.Context, wallet *core.ConnectedWallet) error

	// TouchWallet records a fresh verification of an existing wallet
	TouchWallet(ctx context.Context, walletID string, chain core.ChainID, provider core.ProviderID, at time.Time) error

	SetPrimary(ctx context.Context, userID, walletID string) error

	// RemoveWallet unlinks a wallet, refusing to remove the last one and
	// promoting the oldest remaining wallet when the primary is removed
	RemoveWallet(ctx context.Context, userID, walletID string) error
}
