package mcpservice

import "sync"

// ChangeNotifier is an in-process fan-out of "something changed" signals.
// Each subscriber owns a channel with a buffer of one, so bursts coalesce
// into a single pending signal and Notify never blocks.
type ChangeNotifier struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// Notify signals every current subscriber.
func (cn *ChangeNotifier) Notify() {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	for ch := range cn.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a channel that receives a signal after each Notify and a
// function that unsubscribes and closes it.
func (cn *ChangeNotifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	cn.mu.Lock()
	if cn.subs == nil {
		cn.subs = make(map[chan struct{}]struct{})
	}
	cn.subs[ch] = struct{}{}
	cn.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			cn.mu.Lock()
			delete(cn.subs, ch)
			cn.mu.Unlock()
			close(ch)
		})
	}
}
