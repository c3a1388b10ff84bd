package steam

import "sync"

// notifier fans a change event out to subscribed listeners.
type notifier struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func()
}

// subscribe registers a listener and returns its unsubscribe function.
func (n *notifier) subscribe(fn func()) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listeners == nil {
		n.listeners = make(map[int]func())
	}
	id := n.next
	n.next++
	n.listeners[id] = fn

	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

// notify invokes every listener. Listeners must not block.
func (n *notifier) notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
