package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/siwx"
)

// Config holds the values that shape challenges and sessions
type Config struct {
	Domain    string // Domain every challenge is bound to
	URI       string // Origin written to the URI line, optional
	Statement string // Human readable statement, siwx.DefaultStatement when empty

	ChallengeTTL time.Duration
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Statement == "" {
		c.Statement = siwx.DefaultStatement
	}
	if c.ChallengeTTL <= 0 {
		c.ChallengeTTL = 5 * time.Minute
	}
	if c.ChallengeTTL > core.MaxChallengeTTL {
		c.ChallengeTTL = core.MaxChallengeTTL
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = 5 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 5 * 24 * time.Hour // 5 days
	}
	return c
}

// Option customizes an AuthService
type Option func(*AuthService)

// WithLogger sets the logger, slog.Default() otherwise
func WithLogger(logger *slog.Logger) Option {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		s.now = now
	}
}

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer   ports.Tokenizer
	revocations ports.RevocationStore
	challenges  ports.ChallengeStore
	accounts    ports.AccountRepository
	verifiers   ports.SignatureVerifiers
	eventPub    ports.EventPublisher

	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	revocations ports.RevocationStore,
	challenges ports.ChallengeStore,
	accounts ports.AccountRepository,
	verifiers ports.SignatureVerifiers,
	eventPub ports.EventPublisher,
	cfg Config,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		tokenizer:   tokenizer,
		revocations: revocations,
		challenges:  challenges,
		accounts:    accounts,
		verifiers:   verifiers,
		eventPub:    eventPub,
		cfg:         cfg.withDefaults(),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyRequest carries a signed challenge back to the service. Provider may
// be empty when linking; an empty Nonce is parsed from Message.
type VerifyRequest = core.SignedChallenge

// Challenge issues a single-use sign-in challenge for a wallet
func (s *AuthService) Challenge(ctx context.Context, address string, chain core.ChainID, provider core.ProviderID) (*core.Challenge, error) {
	if !chain.Valid() {
		return nil, core.ErrUnsupportedChain
	}
	if _, err := core.ParseProviderID(string(provider)); err != nil {
		return nil, err
	}
	if !provider.Supports(chain) {
		return nil, fmt.Errorf("%s cannot sign for %s: %w", provider, chain, core.ErrUnsupportedChain)
	}

	verifier, err := s.verifiers.For(chain)
	if err != nil {
		return nil, err
	}
	normalized, err := verifier.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	// Generate random nonce
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// The message carries second precision, keep the record in step
	now := s.now().UTC().Truncate(time.Second)
	challenge := &core.Challenge{
		ID:        uuid.New().String(),
		Address:   normalized,
		Chain:     chain,
		Provider:  provider,
		Nonce:     hex.EncodeToString(nonceBytes),
		Domain:    s.cfg.Domain,
		URI:       s.cfg.URI,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.ChallengeTTL),
	}
	challenge.Message = siwx.Build(siwx.Fields{
		Domain:         challenge.Domain,
		Address:        challenge.Address,
		Statement:      s.cfg.Statement,
		URI:            challenge.URI,
		Chain:          challenge.Chain,
		Nonce:          challenge.Nonce,
		IssuedAt:       challenge.IssuedAt,
		ExpirationTime: challenge.ExpiresAt,
	})

	if err := s.challenges.Save(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	metrics.ChallengesIssued.WithLabelValues(string(chain), string(provider)).Inc()
	s.logger.Debug("challenge issued", "address", normalized, "chain", chain, "provider", provider)

	return challenge, nil
}

// checkProof consumes the challenge named by req and verifies the signature
// over it. The nonce stays consumed whatever the outcome.
func (s *AuthService) checkProof(ctx context.Context, req VerifyRequest) (*core.Challenge, error) {
	nonce := req.Nonce
	if nonce == "" {
		fields, err := siwx.Parse(req.Message)
		if err != nil {
			return nil, core.ErrChallengeNotFound
		}
		nonce = fields.Nonce
	}

	challenge, err := s.challenges.Consume(ctx, nonce)
	if err != nil {
		return nil, err
	}

	if challenge.Expired(s.now()) {
		return nil, core.ErrChallengeExpired
	}

	verifier, err := s.verifiers.For(challenge.Chain)
	if err != nil {
		return nil, err
	}
	address, err := verifier.NormalizeAddress(req.Address)
	if err != nil {
		return nil, core.ErrAddressMismatch
	}
	if address != challenge.Address {
		return nil, core.ErrAddressMismatch
	}
	if req.Chain != challenge.Chain {
		return nil, core.ErrChainMismatch
	}
	if req.Provider != "" && req.Provider != challenge.Provider {
		return nil, core.ErrProviderMismatch
	}
	if req.Message != challenge.Message {
		return nil, core.ErrMessageMismatch
	}

	start := time.Now()
	err = verifier.Verify(ctx, challenge.Message, req.Signature, challenge.Address)
	metrics.VerifyLatency.WithLabelValues(string(verifier.Family())).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, core.ErrInvalidSignature) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}

	return challenge, nil
}

// Verify checks a signed challenge and opens a session for the wallet,
// creating the user on first sign-in
func (s *AuthService) Verify(ctx context.Context, req VerifyRequest) (result *core.WalletAuthResult, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = core.Code(err)
		}
		metrics.Verifications.WithLabelValues(string(req.Chain), string(req.Provider), outcome).Inc()
	}()

	challenge, err := s.checkProof(ctx, req)
	if err != nil {
		s.logger.Info("wallet verification rejected", "address", req.Address, "chain", req.Chain, "provider", req.Provider, "error", err)
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	now := s.now()
	user, err := s.userForWallet(ctx, challenge, now)
	if err != nil {
		return nil, err
	}

	ref := core.WalletRef{Address: challenge.Address, Chain: challenge.Chain, Provider: challenge.Provider}
	result, err = s.issue(user, ref)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ports.WalletEvent{
		Type:     ports.EventWalletAuthenticated,
		UserID:   user.ID,
		Address:  ref.Address,
		Chain:    string(ref.Chain),
		Provider: string(ref.Provider),
		At:       now,
	})
	s.logger.Info("wallet authenticated", "user", user.ID, "address", ref.Address, "chain", ref.Chain, "profile_pending", result.ProfilePending)

	return result, nil
}

func (s *AuthService) userForWallet(ctx context.Context, challenge *core.Challenge, now time.Time) (*core.User, error) {
	wallet, err := s.accounts.FindWallet(ctx, challenge.Chain.Family(), challenge.Address)
	switch {
	case err == nil:
		if err := s.accounts.TouchWallet(ctx, wallet.ID, challenge.Chain, challenge.Provider, now); err != nil {
			return nil, fmt.Errorf("failed to update wallet: %w", err)
		}
		return s.accounts.GetUser(ctx, wallet.UserID)

	case errors.Is(err, core.ErrWalletNotFound):
		user := &core.User{ID: uuid.New().String(), CreatedAt: now}
		wallet := &core.ConnectedWallet{
			ID:         uuid.New().String(),
			UserID:     user.ID,
			Address:    challenge.Address,
			Chain:      challenge.Chain,
			Provider:   challenge.Provider,
			IsPrimary:  true,
			IsVerified: true,
			VerifiedAt: &now,
			CreatedAt:  now,
		}
		if err := s.accounts.CreateUserWithWallet(ctx, user, wallet); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		metrics.UsersCreated.Inc()
		s.logger.Info("user created", "user", user.ID, "address", wallet.Address, "chain", wallet.Chain)
		return user, nil

	default:
		return nil, fmt.Errorf("failed to look up wallet: %w", err)
	}
}

// issue opens a new session for user and signs its tokens
func (s *AuthService) issue(user *core.User, wallet core.WalletRef) (*core.WalletAuthResult, error) {
	now := s.now()
	session := &core.Session{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Address:        wallet.Address,
		Chain:          wallet.Chain,
		Provider:       wallet.Provider,
		ProfilePending: !user.ProfileCompleted,
		IssuedAt:       now,
		RefreshExpiry:  now.Add(s.cfg.RefreshTTL),
		AccessExpiry:   now.Add(s.cfg.AccessTTL),
		RefreshID:      uuid.New().String(),
	}

	tokens, err := s.tokens(session)
	if err != nil {
		return nil, err
	}

	return &core.WalletAuthResult{
		User:           user,
		Tokens:         tokens,
		ProfilePending: session.ProfilePending,
		Wallet:         wallet,
	}, nil
}

func (s *AuthService) tokens(session *core.Session) (core.Tokens, error) {
	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return core.Tokens{}, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return core.Tokens{}, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return core.Tokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
	}, nil
}

func (s *AuthService) publish(ctx context.Context, event ports.WalletEvent) {
	if err := s.eventPub.PublishWalletEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish wallet event", "type", event.Type, "user", event.UserID, "error", err)
	}
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshTokenStr string) (*core.Tokens, error) {
	// Parse and validate the refresh token
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	// Check if the token has expired
	if s.now().After(session.RefreshExpiry) {
		return nil, core.ErrTokenExpired
	}

	// Rotation: the presented token is single use, only the call that
	// revokes it gets new tokens
	revoked, err := s.revocations.Revoke(ctx, session.RefreshID, session.RefreshExpiry)
	if err != nil {
		return nil, err
	}
	if !revoked {
		return nil, core.ErrTokenInvalidated
	}

	// Profile state may have changed since the token was issued
	user, err := s.accounts.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.now()
	newSession := &core.Session{
		ID:             uuid.New().String(),
		UserID:         session.UserID,
		Address:        session.Address,
		Chain:          session.Chain,
		Provider:       session.Provider,
		ProfilePending: !user.ProfileCompleted,
		IssuedAt:       now,
		RefreshExpiry:  now.Add(s.cfg.RefreshTTL),
		AccessExpiry:   now.Add(s.cfg.AccessTTL),
		RefreshID:      uuid.New().String(),
	}

	tokens, err := s.tokens(newSession)
	if err != nil {
		return nil, err
	}

	return &tokens, nil
}

// Logout invalidates a refresh token
func (s *AuthService) Logout(ctx context.Context, refreshTokenStr string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return fmt.Errorf("invalid refresh token: %w", err)
	}

	revoked, err := s.revocations.Revoke(ctx, session.RefreshID, session.RefreshExpiry)
	if err != nil {
		return err
	}
	// Logging out twice is not an error, the first call already notified
	if !revoked {
		return nil
	}

	// The token is already invalidated, a lost notification only delays other instances
	if err := s.eventPub.PublishLogout(ctx, session.Address, session.RefreshID); err != nil {
		s.logger.Warn("failed to publish logout event", "address", session.Address, "error", err)
	}

	return nil
}

// ValidateAccessToken parses an access token and checks it has not been revoked
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if s.now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	// Access tokens die with the refresh token they were issued alongside
	if session.RefreshID != "" {
		revoked, err := s.revocations.IsRevoked(ctx, session.RefreshID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, core.ErrTokenInvalidated
		}
	}

	return session, nil
}

// Me returns the user behind a session
func (s *AuthService) Me(ctx context.Context, session *core.Session) (*core.User, error) {
	return s.accounts.GetUser(ctx, session.UserID)
}
