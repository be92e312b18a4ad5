// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    CorruptEvery:  10, // sample logs: ~every 10th corrupt entry
//	    RejectedEvery: 1,  // log every rejected write
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := appcache.New(appcache.Options{
//	    Prefix:   "app:prod",
//	    Provider: store,
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/appcache"
)

// Hooks forwards events to inner on background workers. Events are dropped
// when the queue is full so the cache never blocks on a slow hook.
type Hooks struct {
	inner   appcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ appcache.Hooks = (*Hooks)(nil)

func New(inner appcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent afterwards
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) NamespaceUnresolved(op, ns string) {
	h.try(func() { h.inner.NamespaceUnresolved(op, ns) })
}
func (h *Hooks) CorruptEntry(k, r string)     { h.try(func() { h.inner.CorruptEntry(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string) { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) ProviderError(op, k string, err error) {
	h.try(func() { h.inner.ProviderError(op, k, err) })
}
