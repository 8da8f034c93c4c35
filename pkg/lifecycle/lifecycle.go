// Package lifecycle distributes build-lifecycle signals to the caches that
// must be invalidated by them.
package lifecycle

import (
	"sync"

	"github.com/albertocavalcante/fsmirror/internal/log"
)

// OutputChangesListener is notified before a unit of work may modify outputs.
type OutputChangesListener interface {
	BeforeOutputsChange()
}

// BuildListener is notified when a build finishes.
type BuildListener interface {
	BuildComplete()
}

// Listener receives every lifecycle signal.
type Listener interface {
	OutputChangesListener
	BuildListener
}

// Broadcaster fans signals out to registered listeners in registration
// order. It is itself a Listener, so broadcasters can be chained.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners []*registration
}

// registration gives each Register call an identity of its own, so any
// listener value can be removed without comparing it.
type registration struct {
	listener Listener
}

// NewBroadcaster creates a broadcaster with the given initial listeners.
func NewBroadcaster(listeners ...Listener) *Broadcaster {
	b := &Broadcaster{}
	for _, l := range listeners {
		b.listeners = append(b.listeners, &registration{listener: l})
	}
	return b
}

// Register adds a listener and returns a function that removes it again.
// Registering the same listener twice delivers each signal twice; each
// unregister function removes only its own registration.
func (b *Broadcaster) Register(l Listener) (unregister func()) {
	reg := &registration{listener: l}
	b.mu.Lock()
	b.listeners = append(b.listeners, reg)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, existing := range b.listeners {
				if existing == reg {
					b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Len returns the number of registered listeners.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

func (b *Broadcaster) snapshot() []Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Listener, len(b.listeners))
	for i, reg := range b.listeners {
		out[i] = reg.listener
	}
	return out
}

// BeforeOutputsChange signals that outputs are about to be modified.
func (b *Broadcaster) BeforeOutputsChange() {
	listeners := b.snapshot()
	log.Component("lifecycle").Debugw("outputs about to change", "listeners", len(listeners))
	for _, l := range listeners {
		l.BeforeOutputsChange()
	}
}

// BuildComplete signals that the build has finished.
func (b *Broadcaster) BuildComplete() {
	listeners := b.snapshot()
	log.Component("lifecycle").Debugw("build complete", "listeners", len(listeners))
	for _, l := range listeners {
		l.BuildComplete()
	}
}
