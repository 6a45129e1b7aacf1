package wallet_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/layer-3/walletauth/chains/evm"
	"github.com/layer-3/walletauth/chains/solana"
	"github.com/layer-3/walletauth/chains/sui"
	"github.com/layer-3/walletauth/client/wallet"
	"github.com/layer-3/walletauth/client/wallet/keywallet"
	"github.com/layer-3/walletauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const message = "app.example.com wants you to sign in"

func newEVM(t *testing.T, opts ...keywallet.Option) *keywallet.EVM {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return keywallet.NewEVM(key, opts...)
}

func TestEVMAdapterSignIn(t *testing.T) {
	ctx := context.Background()
	provider := newEVM(t,
		keywallet.WithFlags(map[string]bool{"isMetaMask": true}),
		keywallet.WithChainID(137),
	)
	adapter := wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{provider}})

	require.True(t, adapter.IsInstalled())
	assert.Equal(t, core.ProviderMetaMask, adapter.ID())
	assert.Equal(t, core.FamilyEVM, adapter.Family())

	address, err := adapter.Connect(ctx)
	require.NoError(t, err)
	expected, err := evm.NormalizeAddress(provider.Address())
	require.NoError(t, err)
	assert.Equal(t, expected, address)

	chain, ok := adapter.Chain(ctx)
	require.True(t, ok)
	assert.Equal(t, core.ChainPolygon, chain)

	sig, err := adapter.SignMessage(ctx, message)
	require.NoError(t, err)
	assert.NoError(t, evm.Verify(message, sig, address))

	require.NoError(t, adapter.Disconnect(ctx))
	_, err = adapter.SignMessage(ctx, message)
	assert.ErrorIs(t, err, wallet.ErrLocked)
}

func TestEVMAdapterSkipsImpersonators(t *testing.T) {
	phantom := newEVM(t, keywallet.WithFlags(map[string]bool{"isMetaMask": true, "isPhantom": true}))
	brave := newEVM(t, keywallet.WithFlags(map[string]bool{"isMetaMask": true, "isBraveWallet": true}))
	unflagged := newEVM(t)

	adapter := wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{phantom, brave, unflagged}})
	assert.False(t, adapter.IsInstalled())

	metamask := newEVM(t, keywallet.WithFlags(map[string]bool{"isMetaMask": true}))
	adapter = wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{phantom, metamask}})
	require.True(t, adapter.IsInstalled())

	address, err := adapter.Connect(context.Background())
	require.NoError(t, err)
	expected, _ := evm.NormalizeAddress(metamask.Address())
	assert.Equal(t, expected, address)
}

func TestEVMAdapterPrefersAnnouncedProvider(t *testing.T) {
	announced := newEVM(t)
	source := &staticSource{announcements: []wallet.Announcement{{
		Info:     wallet.ProviderInfo{Name: "MetaMask", RDNS: "io.metamask"},
		Provider: announced,
	}}}
	registry := wallet.NewRegistry(source, wallet.RegistryOptions{})
	defer registry.Close()
	registry.Start(context.Background())
	source.emit()

	adapter := wallet.NewEVMAdapter(&wallet.Environment{Announced: registry})
	address, err := adapter.Connect(context.Background())
	require.NoError(t, err)
	expected, _ := evm.NormalizeAddress(announced.Address())
	assert.Equal(t, expected, address)
}

func TestEVMAdapterRejections(t *testing.T) {
	ctx := context.Background()

	reject := func(method string) keywallet.Approver {
		return func(m string) bool { return m != method }
	}
	flags := keywallet.WithFlags(map[string]bool{"isMetaMask": true})

	adapter := wallet.NewEVMAdapter(&wallet.Environment{
		EVM: []wallet.EvmProvider{newEVM(t, flags, keywallet.WithApprover(reject("eth_requestAccounts")))},
	})
	_, err := adapter.Connect(ctx)
	assert.ErrorIs(t, err, wallet.ErrRejected)
	assert.Contains(t, err.Error(), "Connection rejected")

	adapter = wallet.NewEVMAdapter(&wallet.Environment{
		EVM: []wallet.EvmProvider{newEVM(t, flags, keywallet.WithApprover(reject("personal_sign")))},
	})
	_, err = adapter.Connect(ctx)
	require.NoError(t, err)
	_, err = adapter.SignMessage(ctx, message)
	assert.ErrorIs(t, err, wallet.ErrRejected)
	assert.Contains(t, err.Error(), "Signature rejected")
}

func TestEVMAdapterNotInstalled(t *testing.T) {
	adapter := wallet.NewEVMAdapter(&wallet.Environment{})
	assert.False(t, adapter.IsInstalled())

	_, ok := adapter.Chain(context.Background())
	assert.False(t, ok)

	_, err := adapter.Connect(context.Background())
	assert.ErrorIs(t, err, wallet.ErrUnavailable)
}

func TestSolanaAdapterSignIn(t *testing.T) {
	ctx := context.Background()
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	adapter := wallet.NewSolanaAdapter(&wallet.Environment{Solana: keywallet.NewSolana(key)}, core.ChainSolanaDevnet)

	_, ok := adapter.Chain(ctx)
	assert.False(t, ok, "no chain before connecting")

	address, err := adapter.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey().String(), address)

	chain, ok := adapter.Chain(ctx)
	require.True(t, ok)
	assert.Equal(t, core.ChainSolanaDevnet, chain)

	sig, err := adapter.SignMessage(ctx, message)
	require.NoError(t, err)
	assert.NoError(t, solana.Verify(message, sig, address))
}

func TestSolanaAdapterRejected(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	provider := keywallet.NewSolana(key, keywallet.WithApprover(func(m string) bool { return m != "signMessage" }))
	adapter := wallet.NewSolanaAdapter(&wallet.Environment{Solana: provider}, "")

	_, err = adapter.Connect(context.Background())
	require.NoError(t, err)
	_, err = adapter.SignMessage(context.Background(), message)
	assert.ErrorIs(t, err, wallet.ErrRejected)
}

func TestSuiAdapterSignIn(t *testing.T) {
	ctx := context.Background()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	provider := keywallet.NewSui(key, keywallet.WithSuiChain("sui:testnet"))
	adapter := wallet.NewSuiAdapter(&wallet.Environment{Sui: provider})

	address, err := adapter.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, provider.Address(), address)

	chain, ok := adapter.Chain(ctx)
	require.True(t, ok)
	assert.Equal(t, core.ChainSuiTestnet, chain)

	sig, err := adapter.SignMessage(ctx, message)
	require.NoError(t, err)
	assert.NoError(t, sui.Verify(message, sig, address))
}

func TestSuiAdapterLocked(t *testing.T) {
	adapter := wallet.NewSuiAdapter(&wallet.Environment{Sui: lockedSui{}})
	_, err := adapter.Connect(context.Background())
	assert.ErrorIs(t, err, wallet.ErrLocked)
	assert.Contains(t, err.Error(), "wallet locked")
}

func TestAdaptersConcurrentUse(t *testing.T) {
	ctx := context.Background()
	_, suiKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	adapters := []wallet.Adapter{
		wallet.NewEVMAdapter(&wallet.Environment{EVM: []wallet.EvmProvider{
			newEVM(t, keywallet.WithFlags(map[string]bool{"isMetaMask": true})),
		}}),
		wallet.NewSuiAdapter(&wallet.Environment{Sui: keywallet.NewSui(suiKey)}),
	}

	for _, adapter := range adapters {
		t.Run(string(adapter.ID()), func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(3)
				go func() {
					defer wg.Done()
					_, _ = adapter.Connect(ctx)
				}()
				go func() {
					defer wg.Done()
					_, _ = adapter.SignMessage(ctx, message)
				}()
				go func() {
					defer wg.Done()
					_ = adapter.Disconnect(ctx)
				}()
			}
			wg.Wait()

			_, err := adapter.Connect(ctx)
			require.NoError(t, err)
			_, err = adapter.SignMessage(ctx, message)
			assert.NoError(t, err)
		})
	}
}

func TestSessionAdapterPairing(t *testing.T) {
	ctx := context.Background()
	client := newFakeSession(t)
	adapter := wallet.NewSessionAdapter(client)

	assert.True(t, adapter.IsInstalled())
	_, err := adapter.Connect(ctx)
	assert.ErrorIs(t, err, wallet.ErrUnavailable)

	uri, err := adapter.Pair(ctx)
	require.NoError(t, err)
	assert.Contains(t, uri, "wc:")

	connected := make(chan string, 1)
	unsubscribe := adapter.WatchConnection(func(address string) { connected <- address })
	defer unsubscribe()

	client.approve()
	address := <-connected

	chain, ok := adapter.Chain(ctx)
	require.True(t, ok)
	assert.Equal(t, core.ChainEthereum, chain)

	sig, err := adapter.SignMessage(ctx, message)
	require.NoError(t, err)
	assert.NoError(t, evm.Verify(message, sig, address))

	require.NoError(t, adapter.Disconnect(ctx))
	assert.False(t, client.Status().Connected)
}

func TestEnvironmentAdapters(t *testing.T) {
	env := &wallet.Environment{}
	adapters := env.Adapters(nil)
	require.Len(t, adapters, 3)

	adapters = env.Adapters(newFakeSession(t))
	require.Len(t, adapters, 4)
	assert.Equal(t, core.ProviderWalletConnect, adapters[3].ID())
}

type staticSource struct {
	mu            sync.Mutex
	fn            func(wallet.Announcement)
	announcements []wallet.Announcement
}

func (s *staticSource) Subscribe(fn func(wallet.Announcement)) func() {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	return func() {}
}

func (s *staticSource) RequestProviders() {}

func (s *staticSource) emit() {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	for _, a := range s.announcements {
		fn(a)
	}
}

type lockedSui struct{}

func (lockedSui) Connect(context.Context) ([]wallet.SuiAccount, error) { return nil, nil }
func (lockedSui) Accounts() []wallet.SuiAccount                        { return nil }
func (lockedSui) SignPersonalMessage(context.Context, []byte, wallet.SuiAccount) (string, error) {
	return "", nil
}
func (lockedSui) Disconnect(context.Context) error { return nil }

// fakeSession is a paired remote wallet backed by a key wallet
type fakeSession struct {
	*keywallet.EVM

	mu        sync.Mutex
	status    wallet.SessionStatus
	listeners map[int]func(wallet.SessionStatus)
	next      int
}

func newFakeSession(t *testing.T) *fakeSession {
	return &fakeSession{EVM: newEVM(t), listeners: make(map[int]func(wallet.SessionStatus))}
}

func (s *fakeSession) Pair(context.Context) (string, error) {
	return "wc:4f2a@2?relay-protocol=irn&symKey=00", nil
}

func (s *fakeSession) Status() wallet.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSession) Subscribe(fn func(wallet.SessionStatus)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// approve simulates the user accepting the pairing in the wallet app
func (s *fakeSession) approve() {
	_ = s.EVM.Request(context.Background(), nil, "eth_requestAccounts")

	s.mu.Lock()
	s.status = wallet.SessionStatus{Address: s.EVM.Address(), ChainID: 1, Connected: true}
	status := s.status
	listeners := make([]func(wallet.SessionStatus), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(status)
	}
}

func (s *fakeSession) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.status = wallet.SessionStatus{}
	s.mu.Unlock()
	return s.EVM.Request(ctx, nil, "wallet_revokePermissions")
}
