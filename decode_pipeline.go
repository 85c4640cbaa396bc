package main

import (
	"fmt"
	"log"
	"sync"
)

// Decoder turns one audio window into parsed messages. The real demodulator
// lives outside this process; nullDecoder stands in when none is attached.
type Decoder interface {
	Decode(req *DecodeRequest) ([]DecodedMessage, error)
}

// nullDecoder produces no messages. Useful for timing-only deployments and
// for tests that inject batches directly.
type nullDecoder struct{}

func (nullDecoder) Decode(req *DecodeRequest) ([]DecodedMessage, error) {
	return nil, nil
}

// pendingSlot accumulates decode output for one slot until its final window
// has been processed.
type pendingSlot struct {
	slot     *SlotInfo
	messages []DecodedMessage
	seen     map[string]bool // dedup key: sender|text
}

// DecodePipeline consumes decode requests from a bounded queue, runs the
// decoder, and publishes one deduplicated batch per slot once the slot's
// last window has been decoded. Later windows see more of the slot's audio,
// so duplicate decodes across windows are expected and collapsed.
type DecodePipeline struct {
	bus     *EventBus
	decoder Decoder
	metrics *PrometheusMetrics

	requests chan *DecodeRequest
	done     chan struct{}

	mu      sync.Mutex
	pending map[string]*pendingSlot
}

// NewDecodePipeline creates a pipeline with the given queue depth. A nil
// decoder gets the null decoder.
func NewDecodePipeline(bus *EventBus, decoder Decoder, queueDepth int, metrics *PrometheusMetrics) *DecodePipeline {
	if decoder == nil {
		decoder = nullDecoder{}
	}
	if queueDepth <= 0 {
		queueDepth = 16
	}
	return &DecodePipeline{
		bus:      bus,
		decoder:  decoder,
		metrics:  metrics,
		requests: make(chan *DecodeRequest, queueDepth),
		done:     make(chan struct{}),
		pending:  make(map[string]*pendingSlot),
	}
}

// Push queues one decode request. Returns an error when the queue is full
// so the scheduler can drop the window instead of blocking the clock.
func (p *DecodePipeline) Push(req *DecodeRequest) error {
	select {
	case p.requests <- req:
		return nil
	default:
		return fmt.Errorf("decode queue full (%d pending)", cap(p.requests))
	}
}

// Start launches the decode worker.
func (p *DecodePipeline) Start() {
	go p.run()
}

// Stop shuts the pipeline down and waits for the worker to exit. Pending
// requests are discarded.
func (p *DecodePipeline) Stop() {
	close(p.requests)
	<-p.done
}

func (p *DecodePipeline) run() {
	defer close(p.done)
	for req := range p.requests {
		p.process(req)
	}
}

func (p *DecodePipeline) process(req *DecodeRequest) {
	msgs, err := p.decoder.Decode(req)
	if err != nil {
		log.Printf("DecodePipeline: slot %s window %d: decode failed: %v", req.SlotID, req.WindowIdx, err)
	}

	p.mu.Lock()
	// windows arrive in slot order, so a pending entry from an earlier slot
	// lost its final window upstream and will never complete
	if req.Slot != nil {
		for id, stale := range p.pending {
			if id != req.SlotID && stale.slot != nil && stale.slot.StartMs < req.Slot.StartMs {
				log.Printf("DecodePipeline: slot %s: final window never arrived, discarding %d message(s)", id, len(stale.messages))
				delete(p.pending, id)
			}
		}
	}
	ps := p.pending[req.SlotID]
	if ps == nil {
		ps = &pendingSlot{slot: req.Slot, seen: make(map[string]bool)}
		p.pending[req.SlotID] = ps
	}
	for _, m := range msgs {
		key := m.Sender + "|" + SerializeMessage(m.Message)
		if ps.seen[key] {
			continue
		}
		ps.seen[key] = true
		ps.messages = append(ps.messages, m)
	}

	final := req.Slot == nil || req.WindowIdx == len(req.Slot.Mode.WindowTiming)-1
	if final {
		delete(p.pending, req.SlotID)
	}
	messages := ps.messages
	slot := ps.slot
	p.mu.Unlock()

	if !final {
		return
	}

	if p.metrics != nil && slot != nil {
		p.metrics.RecordDecodedMessages(slot.ModeName, len(messages))
	}
	p.bus.Publish(Event{Type: EventDecodedBatch, Batch: &DecodedBatch{
		SlotID:   req.SlotID,
		Slot:     slot,
		Messages: messages,
	}})
}
