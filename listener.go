package framelink

import (
	"reflect"
	"sync"
)

// EventListener receives the events of a connection.
//
// OnReceive is called once per frame, on the connection's read goroutine,
// in the order frames were read. OnError is called at most once, when the
// link is declared broken, before the socket is closed. A slow listener
// delays the next read.
//
// Listeners are compared by identity when added or removed, so
// implementations should be pointer types. Listeners whose dynamic type is
// not comparable are rejected.
type EventListener interface {
	OnReceive(payload []byte)
	OnError(code int, description string)
}

// ListenerFuncs adapts plain functions to EventListener. Nil fields are
// skipped. Use it by pointer.
type ListenerFuncs struct {
	Receive func(payload []byte)
	Error   func(code int, description string)
}

// OnReceive implements EventListener.
func (f *ListenerFuncs) OnReceive(payload []byte) {
	if f.Receive != nil {
		f.Receive(payload)
	}
}

// OnError implements EventListener.
func (f *ListenerFuncs) OnError(code int, description string) {
	if f.Error != nil {
		f.Error(code, description)
	}
}

// listenerSet is an ordered set of listeners safe for concurrent use.
// Notification iterates over a snapshot, so listeners may add or remove
// listeners from inside a callback.
type listenerSet struct {
	mu sync.RWMutex
	// elements are never overwritten in place, snapshots stay valid
	listeners []EventListener
}

func newListenerSet() *listenerSet {
	return &listenerSet{}
}

// add appends l unless it is already registered.
func (s *listenerSet) add(l EventListener) bool {
	if !isComparable(l) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.listeners {
		if existing == l {
			return false
		}
	}
	s.listeners = append(s.listeners, l)
	return true
}

// remove drops l and reports whether it was registered.
func (s *listenerSet) remove(l EventListener) bool {
	if !isComparable(l) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// isComparable reports whether l can be used with ==.
func isComparable(l EventListener) bool {
	return l != nil && reflect.TypeOf(l).Comparable()
}

func (s *listenerSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

func (s *listenerSet) snapshot() []EventListener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listeners
}

func (s *listenerSet) notifyReceive(payload []byte) {
	for _, l := range s.snapshot() {
		l.OnReceive(payload)
	}
}

func (s *listenerSet) notifyError(code int, description string) {
	for _, l := range s.snapshot() {
		l.OnError(code, description)
	}
}
