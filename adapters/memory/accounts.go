// Package memory holds an in-process account repository for development and
// tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

type walletKey struct {
	family  core.Family
	address string
}

// Accounts is an in-memory implementation of ports.AccountRepository
type Accounts struct {
	mu       sync.RWMutex
	users    map[string]*core.User
	wallets  map[string]*core.ConnectedWallet
	byWallet map[walletKey]string
}

// NewAccounts creates an empty repository
func NewAccounts() *Accounts {
	return &Accounts{
		users:    make(map[string]*core.User),
		wallets:  make(map[string]*core.ConnectedWallet),
		byWallet: make(map[walletKey]string),
	}
}

var _ ports.AccountRepository = (*Accounts)(nil)

func keyOf(w *core.ConnectedWallet) walletKey {
	return walletKey{family: w.Chain.Family(), address: w.Address}
}

func copyUser(u *core.User) *core.User {
	c := *u
	return &c
}

func copyWallet(w *core.ConnectedWallet) *core.ConnectedWallet {
	c := *w
	return &c
}

func (a *Accounts) CreateUserWithWallet(ctx context.Context, user *core.User, wallet *core.ConnectedWallet) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, taken := a.byWallet[keyOf(wallet)]; taken {
		return core.ErrWalletLinkedElsewhere
	}

	a.users[user.ID] = copyUser(user)

	w := copyWallet(wallet)
	w.UserID = user.ID
	w.IsPrimary = true
	a.wallets[w.ID] = w
	a.byWallet[keyOf(w)] = w.ID
	return nil
}

func (a *Accounts) GetUser(ctx context.Context, userID string) (*core.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	u, ok := a.users[userID]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (a *Accounts) CompleteProfile(ctx context.Context, userID string, update core.ProfileUpdate, at time.Time) (*core.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.users[userID]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	if u.ProfileCompleted {
		return nil, core.ErrProfileAlreadyComplete
	}
	for id, other := range a.users {
		if id != userID && strings.EqualFold(other.Username, update.Username) {
			return nil, core.ErrUsernameTaken
		}
	}

	u.Username = update.Username
	u.FullName = update.FullName
	u.ProfileCompleted = true
	u.TermsAcceptedAt = &at
	u.PrivacyAcceptedAt = &at
	return copyUser(u), nil
}

func (a *Accounts) FindWallet(ctx context.Context, family core.Family, address string) (*core.ConnectedWallet, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	id, ok := a.byWallet[walletKey{family: family, address: address}]
	if !ok {
		return nil, core.ErrWalletNotFound
	}
	return copyWallet(a.wallets[id]), nil
}

func (a *Accounts) ListWallets(ctx context.Context, userID string) ([]*core.ConnectedWallet, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.listLocked(userID), nil
}

// listLocked returns copies ordered oldest first
func (a *Accounts) listLocked(userID string) []*core.ConnectedWallet {
	out := make([]*core.ConnectedWallet, 0)
	for _, w := range a.wallets {
		if w.UserID == userID {
			out = append(out, copyWallet(w))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (a *Accounts) AddWallet(ctx context.Context, wallet *core.ConnectedWallet) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.users[wallet.UserID]; !ok {
		return core.ErrUserNotFound
	}
	if _, taken := a.byWallet[keyOf(wallet)]; taken {
		return core.ErrWalletLinkedElsewhere
	}

	w := copyWallet(wallet)
	existing := a.listLocked(w.UserID)
	if len(existing) == 0 {
		w.IsPrimary = true
	}
	if w.IsPrimary {
		a.demoteLocked(w.UserID)
	}

	a.wallets[w.ID] = w
	a.byWallet[keyOf(w)] = w.ID
	return nil
}

func (a *Accounts) demoteLocked(userID string) {
	for _, w := range a.wallets {
		if w.UserID == userID {
			w.IsPrimary = false
		}
	}
}

func (a *Accounts) TouchWallet(ctx context.Context, walletID string, chain core.ChainID, provider core.ProviderID, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.wallets[walletID]
	if !ok {
		return core.ErrWalletNotFound
	}
	w.Chain = chain
	w.Provider = provider
	w.IsVerified = true
	w.VerifiedAt = &at
	return nil
}

func (a *Accounts) SetPrimary(ctx context.Context, userID, walletID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.wallets[walletID]
	if !ok || w.UserID != userID {
		return core.ErrWalletNotFound
	}
	a.demoteLocked(userID)
	w.IsPrimary = true
	return nil
}

func (a *Accounts) RemoveWallet(ctx context.Context, userID, walletID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.wallets[walletID]
	if !ok || w.UserID != userID {
		return core.ErrWalletNotFound
	}

	remaining := a.listLocked(userID)
	if len(remaining) <= 1 {
		return core.ErrLastWallet
	}

	delete(a.wallets, walletID)
	delete(a.byWallet, keyOf(w))

	if w.IsPrimary {
		for _, other := range remaining {
			if other.ID != walletID {
				a.wallets[other.ID].IsPrimary = true
				break
			}
		}
	}
	return nil
}
