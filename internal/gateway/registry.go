package gateway

import "sync"

// Registry tracks live relays by correlation id so active streams can be
// inspected and cancelled. Entries are removed on every terminal transition,
// whichever path triggers it.
type Registry struct {
	mu     sync.RWMutex
	relays map[string]*Relay
}

func NewRegistry() *Registry {
	return &Registry{relays: make(map[string]*Relay)}
}

func (g *Registry) add(r *Relay) {
	g.mu.Lock()
	g.relays[r.ID] = r
	g.mu.Unlock()
}

func (g *Registry) remove(id string) {
	g.mu.Lock()
	delete(g.relays, id)
	g.mu.Unlock()
}

// Get returns the live relay for an id, or nil when the stream has already
// reached a terminal state.
func (g *Registry) Get(id string) *Relay {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.relays[id]
}

// Abort cancels a live stream. Content produced so far is still billed and
// recorded by the completion handler. Returns false when no such stream is
// active.
func (g *Registry) Abort(id string) bool {
	r := g.Get(id)
	if r == nil {
		return false
	}
	r.Close()
	return true
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.relays)
}
