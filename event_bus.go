package main

import (
	"log"
	"sync"
)

// EventType enumerates every event that crosses the engine bus. The set is
// closed: components switch on the type and read the matching payload field.
type EventType int

const (
	EventSlotStart EventType = iota
	EventEncodeStart
	EventTransmitStart
	EventSubWindow
	EventDecodedBatch
	EventRequestTransmit
	EventOperatorStatusChanged
	EventOperatorSlotsUpdated
	EventOperatorStateChanged
	EventQSORecordAdded
	EventLogbookQuery
	EventLogbookReply
	EventError
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventSlotStart:
		return "slotStart"
	case EventEncodeStart:
		return "encodeStart"
	case EventTransmitStart:
		return "transmitStart"
	case EventSubWindow:
		return "subWindow"
	case EventDecodedBatch:
		return "decodedBatch"
	case EventRequestTransmit:
		return "requestTransmit"
	case EventOperatorStatusChanged:
		return "operatorStatusChanged"
	case EventOperatorSlotsUpdated:
		return "operatorSlotsUpdated"
	case EventOperatorStateChanged:
		return "operatorStateChanged"
	case EventQSORecordAdded:
		return "qsoRecordAdded"
	case EventLogbookQuery:
		return "logbookQuery"
	case EventLogbookReply:
		return "logbookReply"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the tagged union carried by the bus. Exactly one payload field
// matching Type is set.
type Event struct {
	Type      EventType
	Slot      *SlotInfo        // slotStart, encodeStart, transmitStart, subWindow
	WindowIdx int              // subWindow
	Batch     *DecodedBatch    // decodedBatch
	Transmit  *TransmitRequest // requestTransmit
	Status    *OperatorStatus  // operatorStatusChanged
	Slots     *OperatorSlots   // operatorSlotsUpdated
	State     *OperatorState   // operatorStateChanged
	Record    *QSORecord       // qsoRecordAdded
	Query     *LogbookQuery    // logbookQuery
	Reply     *LogbookReply    // logbookReply
	Err       error            // error
}

// DecodedBatch carries all messages decoded from one slot's audio. The
// engine publishes the batch for slot N before slot N+1 starts so operators
// can answer in the following transmit slot.
type DecodedBatch struct {
	SlotID   string           `json:"slot_id"`
	Slot     *SlotInfo        `json:"slot,omitempty"`
	Messages []DecodedMessage `json:"messages"`
}

// EventBus is a synchronous in-process dispatcher. Handlers run in the
// publisher's goroutine, in registration order, which gives the ordering
// guarantee the slot pipeline relies on: slotStart for a slot reaches every
// subscriber before any later event published from those handlers.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]func(Event)
	all      []func(Event)
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]func(Event)),
	}
}

// Subscribe registers a handler for one event type.
func (b *EventBus) Subscribe(t EventType, fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], fn)
}

// SubscribeAll registers a handler that receives every event. Used by the
// outward-facing surfaces (websocket, metrics) that fan out everything.
func (b *EventBus) SubscribeAll(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, fn)
}

// Publish delivers the event synchronously to all matching handlers. A
// panicking handler is recovered and logged so one bad subscriber cannot
// take down the slot pipeline.
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	handlers := b.handlers[ev.Type]
	all := b.all
	b.mu.RUnlock()

	for _, fn := range handlers {
		b.dispatch(fn, ev)
	}
	for _, fn := range all {
		b.dispatch(fn, ev)
	}
}

func (b *EventBus) dispatch(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("EventBus: handler panic on %s: %v", ev.Type, r)
		}
	}()
	fn(ev)
}
