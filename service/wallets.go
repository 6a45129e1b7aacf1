package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/ports"
)

// LinkRequest proves ownership of an additional wallet
type LinkRequest struct {
	VerifyRequest
	Label     string
	IsPrimary bool
}

// ConnectedWallets lists a user's wallets, oldest first
func (s *AuthService) ConnectedWallets(ctx context.Context, userID string) ([]*core.ConnectedWallet, error) {
	wallets, err := s.accounts.ListWallets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return wallets, nil
}

// LinkWallet attaches a newly proven wallet to userID. Re-linking a wallet the
// user already owns refreshes its verification.
func (s *AuthService) LinkWallet(ctx context.Context, userID string, req LinkRequest) (*core.ConnectedWallet, error) {
	challenge, err := s.checkProof(ctx, req.VerifyRequest)
	if err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	now := s.now()
	family := challenge.Chain.Family()

	existing, err := s.accounts.FindWallet(ctx, family, challenge.Address)
	switch {
	case err == nil:
		if existing.UserID != userID {
			return nil, core.ErrWalletLinkedElsewhere
		}
		if err := s.accounts.TouchWallet(ctx, existing.ID, challenge.Chain, challenge.Provider, now); err != nil {
			return nil, fmt.Errorf("failed to update wallet: %w", err)
		}
		if req.IsPrimary && !existing.IsPrimary {
			if err := s.accounts.SetPrimary(ctx, userID, existing.ID); err != nil {
				return nil, fmt.Errorf("failed to set primary wallet: %w", err)
			}
		}

	case errors.Is(err, core.ErrWalletNotFound):
		wallet := &core.ConnectedWallet{
			ID:         uuid.New().String(),
			UserID:     userID,
			Address:    challenge.Address,
			Chain:      challenge.Chain,
			Provider:   challenge.Provider,
			Label:      req.Label,
			IsPrimary:  req.IsPrimary,
			IsVerified: true,
			VerifiedAt: &now,
			CreatedAt:  now,
		}
		if err := s.accounts.AddWallet(ctx, wallet); err != nil {
			return nil, fmt.Errorf("failed to link wallet: %w", err)
		}

	default:
		return nil, fmt.Errorf("failed to look up wallet: %w", err)
	}

	linked, err := s.accounts.FindWallet(ctx, family, challenge.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to load linked wallet: %w", err)
	}

	metrics.WalletChanges.WithLabelValues("link").Inc()
	s.publish(ctx, ports.WalletEvent{
		Type:     ports.EventWalletLinked,
		UserID:   userID,
		Address:  linked.Address,
		Chain:    string(linked.Chain),
		Provider: string(linked.Provider),
		At:       now,
	})
	s.logger.Info("wallet linked", "user", userID, "address", linked.Address, "chain", linked.Chain, "primary", linked.IsPrimary)

	return linked, nil
}

// UnlinkWallet removes one of the user's wallets by address. An empty chain
// matches the address on any family.
func (s *AuthService) UnlinkWallet(ctx context.Context, userID, address string, chain core.ChainID) error {
	if chain != "" && !chain.Valid() {
		return core.ErrUnsupportedChain
	}

	wallets, err := s.accounts.ListWallets(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list wallets: %w", err)
	}

	target, err := s.matchWallet(wallets, address, chain)
	if err != nil {
		return err
	}

	if err := s.accounts.RemoveWallet(ctx, userID, target.ID); err != nil {
		return fmt.Errorf("failed to unlink wallet: %w", err)
	}

	metrics.WalletChanges.WithLabelValues("unlink").Inc()
	s.publish(ctx, ports.WalletEvent{
		Type:     ports.EventWalletUnlinked,
		UserID:   userID,
		Address:  target.Address,
		Chain:    string(target.Chain),
		Provider: string(target.Provider),
		At:       s.now(),
	})
	s.logger.Info("wallet unlinked", "user", userID, "address", target.Address, "chain", target.Chain)

	return nil
}

func (s *AuthService) matchWallet(wallets []*core.ConnectedWallet, address string, chain core.ChainID) (*core.ConnectedWallet, error) {
	for _, w := range wallets {
		if chain != "" && chain.Family() != w.Chain.Family() {
			continue
		}
		verifier, err := s.verifiers.For(w.Chain)
		if err != nil {
			continue
		}
		normalized, err := verifier.NormalizeAddress(address)
		if err != nil {
			continue
		}
		if normalized == w.Address {
			return w, nil
		}
	}
	return nil, core.ErrWalletNotFound
}
