// Package authflow drives a wallet sign-in from provider selection to a
// verified session.
package authflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/layer-3/walletauth/client/wallet"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/msgsafety"
)

// Backend issues and verifies challenges
type Backend interface {
	Challenge(ctx context.Context, address string, chain core.ChainID, provider core.ProviderID) (*core.Challenge, error)
	Verify(ctx context.Context, req core.SignedChallenge) (*core.WalletAuthResult, error)
}

// Session reloads the signed-in session after a completed login
type Session interface {
	Refresh(ctx context.Context) error
}

type SafetyPolicy int

const (
	// SafetyBlock fails the attempt when the challenge looks unsafe
	SafetyBlock SafetyPolicy = iota
	// SafetyWarn logs the issues and lets the user sign
	SafetyWarn
)

// DefaultCloseDelay is how long the success state stays up when
// Options.CloseDelay is zero
const DefaultCloseDelay = 1500 * time.Millisecond

type Options struct {
	Adapters []wallet.Adapter
	Backend  Backend
	Session  Session
	// Domain the challenge must be bound to. The challenge's own domain is
	// used when empty.
	Domain string
	Safety SafetyPolicy
	// CloseDelay is how long the success state is shown before a callback
	// runs. Zero means DefaultCloseDelay, a negative value runs callbacks
	// synchronously inside Sign.
	CloseDelay          time.Duration
	OnClose             func()
	OnProfileCompletion func(*core.WalletAuthResult)
	Logger              *slog.Logger
}

// Machine is the sign-in state machine. All methods are safe for concurrent use.
type Machine struct {
	opts     Options
	adapters map[core.ProviderID]wallet.Adapter
	logger   *slog.Logger

	mu        sync.Mutex
	snap      Snapshot
	adapter   wallet.Adapter
	attempt   uint64
	signing   bool
	unwatch   func()
	listeners map[int]func(Snapshot)
	nextID    int
}

func New(opts Options) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CloseDelay == 0 {
		opts.CloseDelay = DefaultCloseDelay
	}
	adapters := make(map[core.ProviderID]wallet.Adapter, len(opts.Adapters))
	for _, a := range opts.Adapters {
		adapters[a.ID()] = a
	}
	return &Machine{
		opts:      opts,
		adapters:  adapters,
		logger:    logger.With("component", "authflow"),
		listeners: make(map[int]func(Snapshot)),
	}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Subscribe calls fn after every state change until unsubscribed
func (m *Machine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// update applies fn under the lock when attempt is still current, then
// notifies subscribers
func (m *Machine) update(attempt uint64, fn func(s *Snapshot)) bool {
	m.mu.Lock()
	if attempt != m.attempt {
		m.mu.Unlock()
		return false
	}
	fn(&m.snap)
	snap := m.snap
	listeners := make([]func(Snapshot), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	m.logger.Debug("auth state changed", "state", snap.State, "provider", snap.Provider)
	for _, l := range listeners {
		l(snap)
	}
	return true
}

func (m *Machine) fail(attempt uint64, err error) {
	m.update(attempt, func(s *Snapshot) {
		s.State = StateWalletError
		s.PairingURI = ""
		s.Err = err
		s.Error = humanMessage(err)
	})
	m.logger.Info("wallet sign-in failed", "error", err)
}

// SelectProvider connects the provider's wallet and fetches a challenge. An
// empty chain means the wallet's current chain. For out-of-band adapters it
// returns once the pairing URI is published and advances when the wallet
// app connects.
func (m *Machine) SelectProvider(ctx context.Context, provider core.ProviderID, chain core.ChainID) error {
	m.mu.Lock()
	if m.snap.State != StateMain {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	m.attempt++
	attempt := m.attempt
	m.snap = Snapshot{State: StateWalletConnecting, Provider: provider, Chain: chain}
	m.mu.Unlock()
	m.update(attempt, func(*Snapshot) {})

	adapter, ok := m.adapters[provider]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
		m.fail(attempt, err)
		return err
	}
	m.mu.Lock()
	m.adapter = adapter
	m.mu.Unlock()

	address, err := adapter.Connect(ctx)
	if err != nil {
		if oob, ok := adapter.(wallet.OutOfBand); ok && wallet.KindOf(err) == wallet.KindUnavailable {
			return m.pair(ctx, attempt, adapter, oob, chain)
		}
		m.fail(attempt, err)
		return err
	}
	return m.advance(ctx, attempt, adapter, address, chain)
}

func (m *Machine) pair(ctx context.Context, attempt uint64, adapter wallet.Adapter, oob wallet.OutOfBand, chain core.ChainID) error {
	uri, err := oob.Pair(ctx)
	if err != nil {
		m.fail(attempt, err)
		return err
	}

	bg := context.WithoutCancel(ctx)
	var once sync.Once
	unwatch := oob.WatchConnection(func(address string) {
		once.Do(func() {
			go func() {
				_ = m.advance(bg, attempt, adapter, address, chain)
			}()
		})
	})

	m.mu.Lock()
	if attempt != m.attempt {
		m.mu.Unlock()
		unwatch()
		return nil
	}
	m.unwatch = unwatch
	m.mu.Unlock()

	m.update(attempt, func(s *Snapshot) {
		if s.State == StateWalletConnecting && s.Address == "" {
			s.PairingURI = uri
		}
	})
	return nil
}

// advance fetches and checks a challenge for a connected address
func (m *Machine) advance(ctx context.Context, attempt uint64, adapter wallet.Adapter, address string, chain core.ChainID) error {
	m.stopWatching(attempt)

	if chain == "" {
		if current, ok := adapter.Chain(ctx); ok {
			chain = current
		} else {
			chain = defaultChain(adapter.Family())
		}
	}
	if chain.Family() != adapter.Family() {
		err := fmt.Errorf("%w: %s", core.ErrUnsupportedChain, chain)
		m.fail(attempt, err)
		return err
	}

	if !m.update(attempt, func(s *Snapshot) {
		s.Address = address
		s.Chain = chain
		s.PairingURI = ""
	}) {
		return nil
	}

	challenge, err := m.opts.Backend.Challenge(ctx, address, chain, adapter.ID())
	if err != nil {
		m.fail(attempt, err)
		return err
	}

	domain := m.opts.Domain
	if domain == "" {
		domain = challenge.Domain
	}
	var warnings []string
	if report := msgsafety.Check(challenge.Message, domain); !report.Safe {
		if m.opts.Safety == SafetyBlock {
			err := fmt.Errorf("%w: %v", ErrUnsafeChallenge, report.Issues)
			m.fail(attempt, err)
			return err
		}
		m.logger.Warn("challenge message failed safety check", "provider", adapter.ID(), "issues", report.Issues)
		warnings = report.Issues
	}

	m.update(attempt, func(s *Snapshot) {
		s.State = StateWalletSigning
		s.Challenge = challenge
		s.Warnings = warnings
	})
	return nil
}

func defaultChain(family core.Family) core.ChainID {
	switch family {
	case core.FamilySolana:
		return core.ChainSolana
	case core.FamilySui:
		return core.ChainSui
	default:
		return core.ChainEthereum
	}
}

func (m *Machine) stopWatching(attempt uint64) {
	m.mu.Lock()
	var unwatch func()
	if attempt == m.attempt {
		unwatch, m.unwatch = m.unwatch, nil
	}
	m.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

// Sign asks the wallet to sign the challenge and verifies the signature
func (m *Machine) Sign(ctx context.Context) error {
	m.mu.Lock()
	if m.snap.State != StateWalletSigning {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	if m.signing {
		m.mu.Unlock()
		return ErrSignInProgress
	}
	m.signing = true
	attempt := m.attempt
	adapter := m.adapter
	snap := m.snap
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.signing = false
		m.mu.Unlock()
	}()

	challenge := snap.Challenge
	signature, err := adapter.SignMessage(ctx, challenge.Message)
	if err != nil {
		m.fail(attempt, err)
		return err
	}

	result, err := m.opts.Backend.Verify(ctx, core.SignedChallenge{
		Address:   snap.Address,
		Chain:     snap.Chain,
		Provider:  adapter.ID(),
		Signature: signature,
		Message:   challenge.Message,
		Nonce:     challenge.Nonce,
	})
	if err != nil {
		m.fail(attempt, err)
		return err
	}

	if !result.ProfilePending && m.opts.Session != nil {
		if err := m.opts.Session.Refresh(ctx); err != nil {
			m.logger.Warn("failed to refresh session after sign-in", "error", err)
		}
	}

	if !m.update(attempt, func(s *Snapshot) {
		s.State = StateWalletSuccess
		s.Result = result
	}) {
		return nil
	}
	m.logger.Info("wallet sign-in succeeded", "provider", adapter.ID(), "chain", snap.Chain, "profile_pending", result.ProfilePending)

	m.after(func() {
		if result.ProfilePending {
			if m.opts.OnProfileCompletion != nil {
				m.opts.OnProfileCompletion(result)
			}
			return
		}
		if m.opts.OnClose != nil {
			m.opts.OnClose()
		}
	})
	return nil
}

func (m *Machine) after(fn func()) {
	if m.opts.CloseDelay < 0 {
		fn()
		return
	}
	time.AfterFunc(m.opts.CloseDelay, fn)
}

// Retry returns from the error state to Main, dropping the previous attempt
// and disconnecting session-layer wallets
func (m *Machine) Retry(ctx context.Context) error {
	m.mu.Lock()
	if m.snap.State != StateWalletError {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	m.attempt++
	attempt := m.attempt
	unwatch := m.unwatch
	m.unwatch = nil
	m.adapter = nil
	m.snap = Snapshot{State: StateMain}
	m.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	for _, a := range m.opts.Adapters {
		if _, ok := a.(wallet.OutOfBand); !ok {
			continue
		}
		if err := a.Disconnect(ctx); err != nil {
			m.logger.Warn("failed to disconnect session wallet", "provider", a.ID(), "error", err)
		}
	}

	m.update(attempt, func(*Snapshot) {})
	return nil
}
