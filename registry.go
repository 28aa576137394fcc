package framelink

import (
	"sort"
	"sync"
)

// Registry maps peer addresses to server handler connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Put registers conn under addr and returns the connection it replaced, if
// any.
func (r *Registry) Put(addr string, conn *Conn) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.conns[addr]
	r.conns[addr] = conn
	if old == conn {
		return nil
	}
	return old
}

// Get returns the connection registered under addr.
func (r *Registry) Get(addr string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[addr]
	return conn, ok
}

// Remove unregisters addr if it still maps to conn.
func (r *Registry) Remove(addr string, conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[addr] != conn {
		return false
	}
	delete(r.conns, addr)
	return true
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Addrs returns the registered addresses in sorted order.
func (r *Registry) Addrs() []string {
	r.mu.RLock()
	addrs := make([]string, 0, len(r.conns))
	for addr := range r.conns {
		addrs = append(addrs, addr)
	}
	r.mu.RUnlock()

	sort.Strings(addrs)
	return addrs
}

// Conns returns a snapshot of the registered connections.
func (r *Registry) Conns() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Range calls fn for each registered connection until fn returns false.
// fn runs on a snapshot and may modify the registry.
func (r *Registry) Range(fn func(addr string, conn *Conn) bool) {
	r.mu.RLock()
	snapshot := make(map[string]*Conn, len(r.conns))
	for addr, conn := range r.conns {
		snapshot[addr] = conn
	}
	r.mu.RUnlock()

	for addr, conn := range snapshot {
		if !fn(addr, conn) {
			return
		}
	}
}
