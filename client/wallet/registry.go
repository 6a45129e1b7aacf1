package wallet

import (
	"context"
	"sync"
	"time"
)

// ProviderInfo is the EIP-6963 provider metadata
type ProviderInfo struct {
	UUID string
	Name string
	Icon string
	RDNS string
}

// Announcement pairs an announced provider with its metadata
type Announcement struct {
	Info     ProviderInfo
	Provider EvmProvider
}

// AnnouncementSource delivers eip6963:announceProvider events and emits
// eip6963:requestProvider
type AnnouncementSource interface {
	Subscribe(fn func(Announcement)) (unsubscribe func())
	RequestProviders()
}

type RegistryOptions struct {
	FirstProbe  time.Duration
	SecondProbe time.Duration
	// Grace keeps the window open after the second probe
	Grace time.Duration
}

func (o RegistryOptions) withDefaults() RegistryOptions {
	if o.FirstProbe <= 0 {
		o.FirstProbe = 150 * time.Millisecond
	}
	if o.SecondProbe <= 0 {
		o.SecondProbe = 600 * time.Millisecond
	}
	if o.Grace < 0 {
		o.Grace = 0
	}
	return o
}

// Registry records EIP-6963 announcements received during a discovery window
type Registry struct {
	source AnnouncementSource
	opts   RegistryOptions

	mu          sync.RWMutex
	providers   map[string]Announcement
	order       []string
	open        bool
	timers      []*time.Timer
	unsubscribe func()
	done        chan struct{}
	closed      bool
}

// NewRegistry subscribes to source right away; announcements are only
// recorded while a window started by Start is open
func NewRegistry(source AnnouncementSource, opts RegistryOptions) *Registry {
	done := make(chan struct{})
	close(done)
	r := &Registry{
		source:    source,
		opts:      opts.withDefaults(),
		providers: make(map[string]Announcement),
		done:      done,
	}
	r.unsubscribe = source.Subscribe(r.record)
	return r
}

// Start opens a discovery window and schedules both probes. Calling it again
// opens a new window.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.stopTimersLocked()
	r.finishLocked()
	r.done = make(chan struct{})
	r.open = true

	done := r.done
	r.timers = []*time.Timer{
		time.AfterFunc(r.opts.FirstProbe, r.source.RequestProviders),
		time.AfterFunc(r.opts.SecondProbe, r.source.RequestProviders),
		time.AfterFunc(r.opts.SecondProbe+r.opts.Grace, func() { r.closeWindow(done) }),
	}

	go func() {
		select {
		case <-ctx.Done():
			r.closeWindow(done)
		case <-done:
		}
	}()
}

func (r *Registry) record(a Announcement) {
	if a.Info.RDNS == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return
	}
	if _, ok := r.providers[a.Info.RDNS]; !ok {
		r.order = append(r.order, a.Info.RDNS)
	}
	r.providers[a.Info.RDNS] = a
}

func (r *Registry) closeWindow(done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != done {
		return
	}
	r.open = false
	r.stopTimersLocked()
	r.finishLocked()
}

func (r *Registry) finishLocked() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

func (r *Registry) stopTimersLocked() {
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
}

// Done is closed when the current discovery window ends
func (r *Registry) Done() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.done
}

func (r *Registry) Lookup(rdns string) (Announcement, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.providers[rdns]
	return a, ok
}

// Providers returns announcements in the order they were first seen
func (r *Registry) Providers() []Announcement {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Announcement, 0, len(r.order))
	for _, rdns := range r.order {
		out = append(out, r.providers[rdns])
	}
	return out
}

// Close unsubscribes from the source. It is safe to call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.open = false
	r.stopTimersLocked()
	r.finishLocked()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
