package wallet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu           sync.Mutex
	listeners    map[int]func(Announcement)
	next         int
	requests     atomic.Int32
	onRequest    func()
	unsubscribed atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{listeners: make(map[int]func(Announcement))}
}

func (s *fakeSource) Subscribe(fn func(Announcement)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
		s.unsubscribed.Add(1)
	}
}

func (s *fakeSource) RequestProviders() {
	s.requests.Add(1)
	if s.onRequest != nil {
		s.onRequest()
	}
}

func (s *fakeSource) announce(rdns, name string) {
	s.mu.Lock()
	listeners := make([]func(Announcement), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()
	for _, l := range listeners {
		l(Announcement{Info: ProviderInfo{UUID: rdns + "-uuid", Name: name, RDNS: rdns}})
	}
}

func fastOptions() RegistryOptions {
	return RegistryOptions{FirstProbe: 5 * time.Millisecond, SecondProbe: 20 * time.Millisecond, Grace: 50 * time.Millisecond}
}

func TestRegistryCollectsDuringWindow(t *testing.T) {
	source := newFakeSource()
	source.onRequest = func() { source.announce("io.metamask", "MetaMask") }

	r := NewRegistry(source, fastOptions())
	defer r.Close()

	source.announce("app.phantom", "Phantom")
	r.Start(context.Background())

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("discovery window did not close")
	}

	assert.Equal(t, int32(2), source.requests.Load())
	a, ok := r.Lookup("io.metamask")
	require.True(t, ok)
	assert.Equal(t, "MetaMask", a.Info.Name)

	_, ok = r.Lookup("app.phantom")
	assert.False(t, ok, "announcements before Start are ignored")

	source.announce("com.trustwallet.app", "Trust")
	_, ok = r.Lookup("com.trustwallet.app")
	assert.False(t, ok, "announcements after the window are ignored")
	assert.Len(t, r.Providers(), 1)
}

func TestRegistryRestart(t *testing.T) {
	source := newFakeSource()
	r := NewRegistry(source, fastOptions())
	defer r.Close()

	r.Start(context.Background())
	<-r.Done()

	r.Start(context.Background())
	source.announce("io.rabby", "Rabby")
	<-r.Done()

	_, ok := r.Lookup("io.rabby")
	assert.True(t, ok)
}

func TestRegistryContextEndsWindow(t *testing.T) {
	source := newFakeSource()
	r := NewRegistry(source, RegistryOptions{FirstProbe: time.Hour, SecondProbe: time.Hour})
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("window still open after cancel")
	}
	assert.Equal(t, int32(0), source.requests.Load())
}

func TestRegistryCloseIdempotent(t *testing.T) {
	source := newFakeSource()
	r := NewRegistry(source, fastOptions())

	r.Start(context.Background())
	r.Close()
	r.Close()

	assert.Equal(t, int32(1), source.unsubscribed.Load())
	source.announce("io.metamask", "MetaMask")
	assert.Empty(t, r.Providers())

	r.Start(context.Background())
	<-r.Done()
}
