package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)

// CompleteProfile records username and consent for a pending user and
// returns a fresh session without the pending flag
func (s *AuthService) CompleteProfile(ctx context.Context, session *core.Session, update core.ProfileUpdate) (*core.WalletAuthResult, error) {
	update.Username = strings.TrimSpace(update.Username)
	update.FullName = strings.TrimSpace(update.FullName)

	if !usernamePattern.MatchString(update.Username) {
		return nil, core.ErrInvalidUsername
	}
	if !update.AgreeToTerms || !update.AgreeToPrivacy {
		return nil, core.ErrTermsNotAccepted
	}

	now := s.now()
	user, err := s.accounts.CompleteProfile(ctx, session.UserID, update, now)
	if err != nil {
		return nil, fmt.Errorf("failed to complete profile: %w", err)
	}

	// Tokens minted while the profile was pending must not be refreshed again
	if session.RefreshID != "" {
		if _, err := s.revocations.Revoke(ctx, session.RefreshID, now.Add(s.cfg.RefreshTTL)); err != nil {
			return nil, err
		}
	}

	ref := core.WalletRef{Address: session.Address, Chain: session.Chain, Provider: session.Provider}
	result, err := s.issue(user, ref)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ports.WalletEvent{
		Type:     ports.EventProfileCompleted,
		UserID:   user.ID,
		Address:  ref.Address,
		Chain:    string(ref.Chain),
		Provider: string(ref.Provider),
		At:       now,
	})
	s.logger.Info("profile completed", "user", user.ID, "username", user.Username)

	return result, nil
}
