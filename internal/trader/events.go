package trader

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies an engine event.
type EventType string

const (
	EventTick          EventType = "tick"
	EventBuy           EventType = "buy"
	EventSell          EventType = "sell"
	EventPaused        EventType = "paused"
	EventError         EventType = "error"
	EventEmergencyStop EventType = "emergency_stop"
	EventAborted       EventType = "aborted"
)

// Event is published by the engine after each state change.
type Event struct {
	Type   EventType `json:"type"`
	Time   time.Time `json:"time"`
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price,omitempty"`
	RSI    float64   `json:"rsi,omitempty"`
	Amount float64   `json:"amount,omitempty"`
	PnL    float64   `json:"pnl,omitempty"`
	Paper  bool      `json:"paper"`
	Reason string    `json:"reason,omitempty"`
}

// EventBus is a buffered event channel. Publish never blocks: events are
// dropped while the buffer is full.
type EventBus struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	dropped atomic.Int64
}

func NewEventBus(size int) *EventBus {
	return &EventBus{ch: make(chan Event, size)}
}

// Publish sends e and reports whether it was delivered.
func (b *EventBus) Publish(e Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}
	select {
	case b.ch <- e:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Events returns the receive side of the bus. It is closed by Close.
func (b *EventBus) Events() <-chan Event {
	return b.ch
}

// Dropped returns the number of events lost to a full buffer.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes the channel. It is safe to call more than once.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
