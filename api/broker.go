package api

import "sync"

// Broker fans task-list snapshots out to connected stream clients, keyed by
// the owner's identity. Channels are buffered size one and sends never
// block: when a client lags, older snapshots are dropped in favor of the
// latest one.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan []byte]struct{})}
}

// Subscribe registers a new client for the given user.
func (b *Broker) Subscribe(user string) chan []byte {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	set, ok := b.subs[user]
	if !ok {
		set = make(map[chan []byte]struct{})
		b.subs[user] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe releases a client channel. It must be called when the owning
// stream is torn down so broadcasts stop reaching dead subscribers.
func (b *Broker) Unsubscribe(user string, ch chan []byte) {
	b.mu.Lock()
	if set, ok := b.subs[user]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(b.subs, user)
		}
	}
	b.mu.Unlock()
}

// Broadcast delivers a snapshot to every subscriber of the given user.
func (b *Broker) Broadcast(user string, data []byte) {
	b.mu.Lock()
	for ch := range b.subs[user] {
		select {
		case ch <- data:
		default:
			// Drop the stale snapshot; the client only needs the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- data:
			default:
			}
		}
	}
	b.mu.Unlock()
}
