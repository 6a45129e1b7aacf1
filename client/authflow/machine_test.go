package authflow_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/memory"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/adapters/verifier"
	"github.com/layer-3/walletauth/client/authflow"
	"github.com/layer-3/walletauth/client/wallet"
	"github.com/layer-3/walletauth/client/wallet/keywallet"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const domain = "app.example.com"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newService(t *testing.T) (*service.AuthService, *clock) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	c := &clock{now: time.Now()}
	svc := service.NewAuthService(
		tokenizer.NewJWTTokenizer(key, "walletauth-test"),
		store.NewMemoryRevocations(),
		store.NewMemoryChallengeStore(store.DefaultRetention),
		memory.NewAccounts(),
		verifier.Default(),
		events.NopPublisher{},
		service.Config{Domain: domain, URI: "https://" + domain},
		service.WithClock(c.Now),
	)
	return svc, c
}

func metaMask(t *testing.T, opts ...keywallet.Option) *keywallet.EVM {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts = append(opts, keywallet.WithFlags(map[string]bool{"isMetaMask": true}))
	return keywallet.NewEVM(key, opts...)
}

type recorder struct {
	mu     sync.Mutex
	states []authflow.State
}

func (r *recorder) record(s authflow.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.states); n == 0 || r.states[n-1] != s.State {
		r.states = append(r.states, s.State)
	}
}

func (r *recorder) all() []authflow.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]authflow.State(nil), r.states...)
}

type countingSession struct {
	calls atomic.Int32
}

func (s *countingSession) Refresh(context.Context) error {
	s.calls.Add(1)
	return nil
}

func TestMetaMaskSignInProfilePending(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	provider := metaMask(t)
	session := &countingSession{}

	var completed *core.WalletAuthResult
	var closed bool
	m := authflow.New(authflow.Options{
		Adapters:            []wallet.Adapter{wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{provider}})},
		Backend:             svc,
		Session:             session,
		Domain:              domain,
		CloseDelay:          -1,
		OnClose:             func() { closed = true },
		OnProfileCompletion: func(r *core.WalletAuthResult) { completed = r },
	})
	rec := &recorder{}
	unsubscribe := m.Subscribe(rec.record)
	defer unsubscribe()

	require.NoError(t, m.SelectProvider(ctx, core.ProviderMetaMask, ""))
	snap := m.Snapshot()
	require.Equal(t, authflow.StateWalletSigning, snap.State)
	assert.Equal(t, core.ChainEthereum, snap.Chain)
	require.NotNil(t, snap.Challenge)
	assert.Contains(t, snap.Challenge.Message, domain)

	require.NoError(t, m.Sign(ctx))
	snap = m.Snapshot()
	assert.Equal(t, authflow.StateWalletSuccess, snap.State)
	require.NotNil(t, snap.Result)
	assert.True(t, snap.Result.ProfilePending)

	require.NotNil(t, completed)
	assert.Equal(t, snap.Result.User.ID, completed.User.ID)
	assert.False(t, closed)
	assert.Equal(t, int32(0), session.calls.Load())

	assert.Equal(t, []authflow.State{
		authflow.StateWalletConnecting,
		authflow.StateWalletSigning,
		authflow.StateWalletSuccess,
	}, rec.all())

	// Success is terminal
	assert.ErrorIs(t, m.SelectProvider(ctx, core.ProviderMetaMask, ""), authflow.ErrInvalidTransition)
	assert.ErrorIs(t, m.Retry(ctx), authflow.ErrInvalidTransition)
	assert.ErrorIs(t, m.Sign(ctx), authflow.ErrInvalidTransition)
}

func TestCompletedProfileClosesAfterDelay(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	provider := metaMask(t, keywallet.WithChainID(8453))
	adapters := []wallet.Adapter{wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{provider}})}

	first := authflow.New(authflow.Options{Adapters: adapters, Backend: svc, Domain: domain})
	require.NoError(t, first.SelectProvider(ctx, core.ProviderMetaMask, ""))
	require.NoError(t, first.Sign(ctx))

	session, err := svc.ValidateAccessToken(ctx, first.Snapshot().Result.Tokens.AccessToken)
	require.NoError(t, err)
	_, err = svc.CompleteProfile(ctx, session, core.ProfileUpdate{Username: "alice", AgreeToTerms: true, AgreeToPrivacy: true})
	require.NoError(t, err)

	refresher := &countingSession{}
	closed := make(chan struct{})
	m := authflow.New(authflow.Options{
		Adapters:            adapters,
		Backend:             svc,
		Session:             refresher,
		Domain:              domain,
		CloseDelay:          20 * time.Millisecond,
		OnClose:             func() { close(closed) },
		OnProfileCompletion: func(*core.WalletAuthResult) { t.Error("profile completion must not open") },
	})

	require.NoError(t, m.SelectProvider(ctx, core.ProviderMetaMask, ""))
	assert.Equal(t, core.ChainBase, m.Snapshot().Chain)
	require.NoError(t, m.Sign(ctx))

	assert.False(t, m.Snapshot().Result.ProfilePending)
	assert.Equal(t, int32(1), refresher.calls.Load())

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("OnClose was not called")
	}
}

func TestSuccessCallbackWaitsDefaultDelay(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	opened := make(chan time.Time, 1)
	m := authflow.New(authflow.Options{
		Adapters:            []wallet.Adapter{wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{metaMask(t)}})},
		Backend:             svc,
		Domain:              domain,
		OnProfileCompletion: func(*core.WalletAuthResult) { opened <- time.Now() },
	})

	require.NoError(t, m.SelectProvider(ctx, core.ProviderMetaMask, ""))
	signed := time.Now()
	require.NoError(t, m.Sign(ctx))
	assert.Equal(t, authflow.StateWalletSuccess, m.Snapshot().State)

	select {
	case <-opened:
		t.Fatal("profile completion opened before the success state was shown")
	default:
	}

	select {
	case at := <-opened:
		assert.GreaterOrEqual(t, at.Sub(signed), authflow.DefaultCloseDelay)
	case <-time.After(3 * authflow.DefaultCloseDelay):
		t.Fatal("profile completion was not opened")
	}
}

func TestSignatureRejectedThenRetry(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	var rejectSign atomic.Bool
	rejectSign.Store(true)
	provider := metaMask(t, keywallet.WithApprover(func(method string) bool {
		return method != "personal_sign" || !rejectSign.Load()
	}))
	m := authflow.New(authflow.Options{
		Adapters: []wallet.Adapter{wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{provider}})},
		Backend:  svc,
		Domain:   domain,
	})

	require.NoError(t, m.SelectProvider(ctx, core.ProviderMetaMask, core.ChainEthereum))
	firstNonce := m.Snapshot().Challenge.Nonce

	err := m.Sign(ctx)
	assert.ErrorIs(t, err, wallet.ErrRejected)

	snap := m.Snapshot()
	assert.Equal(t, authflow.StateWalletError, snap.State)
	assert.Contains(t, snap.Error, "rejected")
	assert.ErrorIs(t, m.SelectProvider(ctx, core.ProviderMetaMask, ""), authflow.ErrInvalidTransition)

	require.NoError(t, m.Retry(ctx))
	snap = m.Snapshot()
	assert.Equal(t, authflow.Snapshot{State: authflow.StateMain}, snap)
	assert.ErrorIs(t, m.Sign(ctx), authflow.ErrInvalidTransition)

	rejectSign.Store(false)
	require.NoError(t, m.SelectProvider(ctx, core.ProviderMetaMask, core.ChainEthereum))
	assert.NotEqual(t, firstNonce, m.Snapshot().Challenge.Nonce)
	require.NoError(t, m.Sign(ctx))
	assert.Equal(t, authflow.StateWalletSuccess, m.Snapshot().State)
}

func TestExpiredChallenge(t *testing.T) {
	ctx := context.Background()
	svc, c := newService(t)
	m := authflow.New(authflow.Options{
		Adapters: []wallet.Adapter{wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{metaMask(t)}})},
		Backend:  svc,
		Domain:   domain,
	})

	require.NoError(t, m.SelectProvider(ctx, core.ProviderMetaMask, ""))
	c.Advance(time.Hour)

	err := m.Sign(ctx)
	assert.ErrorIs(t, err, core.ErrChallengeExpired)
	assert.Equal(t, authflow.StateWalletError, m.Snapshot().State)
	assert.Contains(t, m.Snapshot().Error, "expired")
}

func TestConnectionRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	provider := metaMask(t, keywallet.WithApprover(func(string) bool { return false }))
	m := authflow.New(authflow.Options{
		Adapters: []wallet.Adapter{wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{provider}})},
		Backend:  svc,
		Domain:   domain,
	})

	err := m.SelectProvider(ctx, core.ProviderMetaMask, "")
	assert.ErrorIs(t, err, wallet.ErrRejected)
	snap := m.Snapshot()
	assert.Equal(t, authflow.StateWalletError, snap.State)
	assert.Equal(t, "Connection rejected", snap.Error)
	assert.Nil(t, snap.Challenge)
}

func TestUnknownProvider(t *testing.T) {
	m := authflow.New(authflow.Options{})
	err := m.SelectProvider(context.Background(), core.ProviderSlush, "")
	assert.ErrorIs(t, err, authflow.ErrUnknownProvider)
	assert.Equal(t, authflow.StateWalletError, m.Snapshot().State)
}

func TestChainFamilyMismatch(t *testing.T) {
	svc, _ := newService(t)
	m := authflow.New(authflow.Options{
		Adapters: []wallet.Adapter{wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{metaMask(t)}})},
		Backend:  svc,
		Domain:   domain,
	})
	err := m.SelectProvider(context.Background(), core.ProviderMetaMask, core.ChainSolana)
	assert.ErrorIs(t, err, core.ErrUnsupportedChain)
	assert.Equal(t, "This network is not supported.", m.Snapshot().Error)
}

type stubBackend struct {
	challenge *core.Challenge
	verify    func(core.SignedChallenge) (*core.WalletAuthResult, error)
}

func (b *stubBackend) Challenge(_ context.Context, address string, chain core.ChainID, provider core.ProviderID) (*core.Challenge, error) {
	c := *b.challenge
	c.Address, c.Chain, c.Provider = address, chain, provider
	return &c, nil
}

func (b *stubBackend) Verify(_ context.Context, req core.SignedChallenge) (*core.WalletAuthResult, error) {
	if b.verify == nil {
		return nil, errors.New("verify not expected")
	}
	return b.verify(req)
}

var phishing = &core.Challenge{
	Nonce:   "n1",
	Domain:  "evil.example.net",
	Message: "evil.example.net wants you to approve a transfer of all tokens",
}

func TestUnsafeChallengeBlocked(t *testing.T) {
	m := authflow.New(authflow.Options{
		Adapters: []wallet.Adapter{wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{metaMask(t)}})},
		Backend:  &stubBackend{challenge: phishing},
		Domain:   domain,
	})

	err := m.SelectProvider(context.Background(), core.ProviderMetaMask, "")
	assert.ErrorIs(t, err, authflow.ErrUnsafeChallenge)
	snap := m.Snapshot()
	assert.Equal(t, authflow.StateWalletError, snap.State)
	assert.Nil(t, snap.Challenge)
}

func TestUnsafeChallengeWarn(t *testing.T) {
	m := authflow.New(authflow.Options{
		Adapters: []wallet.Adapter{wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{metaMask(t)}})},
		Backend:  &stubBackend{challenge: phishing},
		Domain:   domain,
		Safety:   authflow.SafetyWarn,
	})

	require.NoError(t, m.SelectProvider(context.Background(), core.ProviderMetaMask, ""))
	snap := m.Snapshot()
	assert.Equal(t, authflow.StateWalletSigning, snap.State)
	assert.NotEmpty(t, snap.Warnings)
}

func TestSignInProgress(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	entered := make(chan struct{})

	backend := &stubBackend{
		challenge: &core.Challenge{Nonce: "n2", Domain: domain, Message: domain + " wants you to sign in"},
		verify: func(req core.SignedChallenge) (*core.WalletAuthResult, error) {
			close(entered)
			<-release
			return &core.WalletAuthResult{ProfilePending: true, Wallet: core.WalletRef{Address: req.Address}}, nil
		},
	}
	m := authflow.New(authflow.Options{
		Adapters: []wallet.Adapter{wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{metaMask(t)}})},
		Backend:  backend,
		Domain:   domain,
	})
	require.NoError(t, m.SelectProvider(ctx, core.ProviderMetaMask, ""))

	done := make(chan error, 1)
	go func() { done <- m.Sign(ctx) }()
	<-entered

	assert.ErrorIs(t, m.Sign(ctx), authflow.ErrSignInProgress)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, authflow.StateWalletSuccess, m.Snapshot().State)
}
