// Package event provides the source side of subscriptions: an Event value
// that types expose as a field, plus the well known property and collection
// change notifications.
//
// Handlers are identified by the Token returned from Add, since Go funcs are
// not comparable.
package event

import "sync"

// Token identifies one registered handler.
type Token uint64

// Handler is the canonical handler shape: the raising object and the
// event arguments.
type Handler[A any] func(sender any, args A)

type entry[A any] struct {
	token   Token
	handler Handler[A]
}

// Event is a multicast event. The zero value is ready to use.
type Event[A any] struct {
	mu      sync.RWMutex
	entries []entry[A]
	next    Token
}

// Add registers h and returns its token.
func (e *Event[A]) Add(h Handler[A]) Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.entries = append(e.entries, entry[A]{token: e.next, handler: h})
	return e.next
}

// Remove unregisters the handler for t. It reports whether t was known.
func (e *Event[A]) Remove(t Token) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, en := range e.entries {
		if en.token == t {
			e.entries = append(e.entries[:i:i], e.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Raise calls every handler registered at the time of the call, in
// registration order. Handlers run outside the lock and may add or remove
// handlers, including themselves.
func (e *Event[A]) Raise(sender any, args A) {
	e.mu.RLock()
	snapshot := e.entries
	e.mu.RUnlock()
	for _, en := range snapshot {
		en.handler(sender, args)
	}
}

// Count returns the number of registered handlers.
func (e *Event[A]) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}
