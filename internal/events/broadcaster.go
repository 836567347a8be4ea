package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// AlertEvent is published once per persisted alert, after the fan-out
// settles.
type AlertEvent struct {
	AlertID          string
	UserID           string
	ContactsNotified int
	TotalContacts    int
	CreatedAt        time.Time
}

// Broadcaster fans alert events out to in-process subscribers (audit
// logging, future live feeds). Sends never block: a subscriber that
// falls behind misses events instead of stalling a dispatch.
type Broadcaster struct {
	subscribers map[uint64]chan AlertEvent
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan AlertEvent),
	}
}

func (b *Broadcaster) Subscribe() (uint64, chan AlertEvent) {
	id := b.nextID.Add(1)
	ch := make(chan AlertEvent, 16)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Broadcast(ev AlertEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// Skip slow subscribers
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels so their consumers exit.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
