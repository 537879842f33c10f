// Package notify provides an in-process pub/sub bus for partition lifecycle
// events. Operators and background loops subscribe to observe provisioning,
// retirement, and index state transitions without polling the catalog.
package notify

import (
	"sync"

	"github.com/google/uuid"
)

// EventType represents the kind of lifecycle event.
type EventType int

const (
	PartitionProvisioned EventType = iota
	PartitionRetired
	IndexDeclared
	IndexBackfilled
	IndexDropped
)

// Event is one lifecycle notification.
type Event struct {
	Type        EventType
	PartitionID string
	IndexName   string
	Timestamp   int64
}

// Notifier fans lifecycle events out to subscribers.
type Notifier struct {
	subscribers sync.Map
	bufferSize  int
}

// NewNotifier creates a notifier whose subscriber channels buffer bufferSize
// events.
func NewNotifier(bufferSize int) *Notifier {
	return &Notifier{bufferSize: bufferSize}
}

// Publish sends an event to all subscribers. Non-blocking: a subscriber with
// a full channel misses the event rather than stalling the publisher.
func (n *Notifier) Publish(ev Event) {
	n.subscribers.Range(func(key, value interface{}) bool {
		sub := value.(*Subscriber)
		if sub.wants(ev.Type) {
			select {
			case sub.Ch <- ev:
			default:
			}
		}
		return true
	})
}

// Subscribe registers a subscriber for the given event types. An empty type
// list receives everything. The returned subscriber's ID is used to
// unsubscribe.
func (n *Notifier) Subscribe(types ...EventType) *Subscriber {
	sub := &Subscriber{
		ID:    uuid.NewString(),
		types: types,
		Ch:    make(chan Event, n.bufferSize),
	}
	n.subscribers.Store(sub.ID, sub)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	if value, ok := n.subscribers.LoadAndDelete(id); ok {
		close(value.(*Subscriber).Ch)
	}
}

// Subscriber receives events on Ch until unsubscribed.
type Subscriber struct {
	ID    string
	Ch    chan Event
	types []EventType
}

func (s *Subscriber) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	for _, want := range s.types {
		if want == t {
			return true
		}
	}
	return false
}
