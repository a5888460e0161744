// Package events provides the domain event bus for the settlement core.
//
// Settlement services publish events after a state change commits; the
// bus fans them out to subscribers (realtime stream, notification layer).
// Delivery is best-effort and never part of the transactional guarantee:
// a full subscriber drops the event rather than blocking settlement.
package events

import (
	"sync"
	"time"

	"github.com/mkalala/sokosettle/internal/idgen"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sokosettle",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Total domain events published by type.",
	}, []string{"event_type"})

	eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sokosettle",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Total domain events dropped due to slow subscribers.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(eventsPublished, eventsDropped)
}

// Type identifies a kind of domain event.
type Type string

const (
	TypeOrderCreated     Type = "order.created"
	TypeOrderCompleted   Type = "order.completed"
	TypeSaleCreated      Type = "sale.created"
	TypeSaleClosed       Type = "sale.closed"
	TypeSaleReturned     Type = "sale.returned"
	TypePaymentCompleted Type = "payment.completed"
	TypePaymentFailed    Type = "payment.failed"
	TypeEscrowHeld       Type = "escrow.held"
	TypeEscrowReleased   Type = "escrow.released"
	TypeEscrowRefunded   Type = "escrow.refunded"
	TypeLoyaltyAccrued   Type = "loyalty.accrued"
)

// Event is a single domain event.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// subscriberBuffer is the per-subscriber channel depth before drops.
const subscriberBuffer = 256

// Bus fans events out to subscribers. The zero value is not usable;
// call NewBus.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan *Event]struct{}
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan *Event]struct{})}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan *Event, func()) {
	ch := make(chan *Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers without blocking.
func (b *Bus) Publish(event *Event) {
	eventsPublished.WithLabelValues(string(event.Type)).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			eventsDropped.WithLabelValues(string(event.Type)).Inc()
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// newEvent builds an event with a fresh ID and timestamp.
func newEvent(eventType Type, data map[string]any) *Event {
	return &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
