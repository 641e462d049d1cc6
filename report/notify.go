package report

import "sync"

// Notifier is a payload-free change signal. The sync engine fires it once
// per mutating invocation; observers (an open grid, the caches) are
// expected to re-fetch rather than trust any payload.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func())}
}

// Subscribe registers fn and returns an unsubscribe func.
func (n *Notifier) Subscribe(fn func()) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	id := n.next
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Notify invokes every subscriber synchronously.
func (n *Notifier) Notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
