package main

import (
	"log"
	"sync"
	"time"
)

// AudioBufferProvider supplies PCM audio for an absolute wall-clock window.
// Negative start offsets relative to "now" are valid: the provider keeps a
// ring of recent audio and is expected to honor them.
type AudioBufferProvider interface {
	// GetBuffer returns durationMs milliseconds of mono 16-bit PCM
	// starting at the given unix epoch millisecond.
	GetBuffer(startMs, durationMs int64) ([]byte, error)
	GetSampleRate() int
}

// DecodeQueue accepts bounded decode work for the external decoder.
type DecodeQueue interface {
	Push(req *DecodeRequest) error
}

// DecodeRequest is one fixed-length audio window to be decoded. Consumed
// exactly once by the external decoder.
type DecodeRequest struct {
	SlotID     string    `json:"slot_id"`
	Slot       *SlotInfo `json:"slot,omitempty"`
	WindowIdx  int       `json:"window_idx"`
	PCM        []byte    `json:"-"`
	SampleRate int       `json:"sample_rate"`
	Timestamp  time.Time `json:"timestamp"`
}

// SlotScheduler converts subWindow events into decode requests: it pulls a
// slot-length audio window from the provider and pushes it onto the decode
// queue. One bad window must not break the clock, so provider failures are
// logged and dropped.
type SlotScheduler struct {
	provider AudioBufferProvider
	queue    DecodeQueue
	metrics  *PrometheusMetrics

	mu      sync.Mutex
	running bool
}

// NewSlotScheduler creates a scheduler and registers it on the bus. It
// stays passive until Start is called.
func NewSlotScheduler(bus *EventBus, provider AudioBufferProvider, queue DecodeQueue, metrics *PrometheusMetrics) *SlotScheduler {
	s := &SlotScheduler{
		provider: provider,
		queue:    queue,
		metrics:  metrics,
	}
	bus.Subscribe(EventSubWindow, s.onSubWindow)
	return s
}

// Start enables sub-window processing. Idempotent.
func (s *SlotScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

// Stop disables sub-window processing. Idempotent. Events arriving while
// stopped are ignored.
func (s *SlotScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

func (s *SlotScheduler) onSubWindow(ev Event) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running || ev.Slot == nil {
		return
	}

	slot := ev.Slot
	mode := slot.Mode
	if ev.WindowIdx < 0 || ev.WindowIdx >= len(mode.WindowTiming) {
		log.Printf("SlotScheduler: slot %s window %d out of range", slot.ID, ev.WindowIdx)
		return
	}

	windowStartMs := slot.StartMs + mode.WindowTiming[ev.WindowIdx]
	pcm, err := s.provider.GetBuffer(windowStartMs, mode.SlotMs)
	if err != nil {
		log.Printf("SlotScheduler: slot %s window %d: buffer fetch failed: %v", slot.ID, ev.WindowIdx, err)
		if s.metrics != nil {
			s.metrics.RecordWindowDropped(mode.Name)
		}
		return
	}

	req := &DecodeRequest{
		SlotID:     slot.ID,
		Slot:       slot,
		WindowIdx:  ev.WindowIdx,
		PCM:        pcm,
		SampleRate: s.provider.GetSampleRate(),
		Timestamp:  time.Now(),
	}
	if err := s.queue.Push(req); err != nil {
		log.Printf("SlotScheduler: slot %s window %d: decode queue push failed: %v", slot.ID, ev.WindowIdx, err)
		if s.metrics != nil {
			s.metrics.RecordWindowDropped(mode.Name)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordWindowScheduled(mode.Name)
	}
	if DebugMode {
		log.Printf("SlotScheduler: slot %s window %d queued (%d bytes @ %d Hz)",
			slot.ID, ev.WindowIdx, len(req.PCM), req.SampleRate)
	}
}
