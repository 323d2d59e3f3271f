package protocol

import (
	"fmt"
	"sync"

	"github.com/mezonai/bitvm20/logx"
)

// AllTransactions subscribes to the events of every transaction.
const AllTransactions = ""

// EventBus fans operator events out to subscribers keyed by transaction hash.
type EventBus struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe returns a buffered channel for the events of txHash, or of all
// transactions for AllTransactions.
func (eb *EventBus) Subscribe(txHash string) chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, 10)
	eb.subscribers[txHash] = append(eb.subscribers[txHash], ch)
	logx.Debug("EVENTS", fmt.Sprintf("subscribed to %q (total subscribers: %d)", txHash, len(eb.subscribers[txHash])))
	return ch
}

// Unsubscribe removes and closes ch.
func (eb *EventBus) Unsubscribe(txHash string, ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[txHash]
	for i, sub := range subs {
		if sub != ch {
			continue
		}
		eb.subscribers[txHash] = append(subs[:i], subs[i+1:]...)
		close(ch)
		if len(eb.subscribers[txHash]) == 0 {
			delete(eb.subscribers, txHash)
		}
		return
	}
}

// Publish never blocks; a subscriber with a full channel misses the event.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	deliver := func(subs []chan Event) {
		for _, ch := range subs {
			select {
			case ch <- event:
			default:
				logx.Warn("EVENTS", fmt.Sprintf("subscriber channel full, dropped %s for %s", event.Type(), event.TxHash()))
			}
		}
	}
	if event.TxHash() != AllTransactions {
		deliver(eb.subscribers[event.TxHash()])
	}
	deliver(eb.subscribers[AllTransactions])
}

func (eb *EventBus) SubscriberCount(txHash string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[txHash])
}
