package main

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const msPerDay = 24 * 60 * 60 * 1000

// SlotInfo describes one slot on the shared UTC time grid. Built once per
// slot by the SlotClock and never mutated afterwards.
type SlotInfo struct {
	ID          string          `json:"id"`
	StartMs     int64           `json:"start_ms"` // unix epoch ms of the nominal slot start
	PhaseMs     int64           `json:"phase_ms"` // elapsed ms into the slot when slotStart fired
	DriftMs     int64           `json:"drift_ms"` // fire time minus nominal boundary
	CycleNumber int64           `json:"cycle"`
	UTCSeconds  int64           `json:"utc_seconds"` // seconds since UTC midnight at slot start
	ModeName    string          `json:"mode"`
	Mode        *ModeDescriptor `json:"-"`
}

// SlotClock is the timing authority. It arms a single timer for the next
// UTC-aligned slot boundary and, when it fires, emits slotStart followed by
// encodeStart/transmitStart/subWindow timers for that slot, then re-arms
// itself for the following boundary.
type SlotClock struct {
	clock ClockSource
	bus   *EventBus

	mu          sync.Mutex
	mode        *ModeDescriptor
	running     bool
	boundary    ClockTimer
	lastStartMs int64
}

// NewSlotClock creates a slot clock for the given mode. Events are
// published on the bus.
func NewSlotClock(clock ClockSource, bus *EventBus, mode *ModeDescriptor) (*SlotClock, error) {
	if err := mode.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mode descriptor: %w", err)
	}
	return &SlotClock{
		clock: clock,
		bus:   bus,
		mode:  mode,
	}, nil
}

// Start arms the timer for the next slot boundary. Calling Start on a
// running clock is a no-op.
func (c *SlotClock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.scheduleNextLocked()
	log.Printf("SlotClock: started (mode %s, slot %d ms)", c.mode.Name, c.mode.SlotMs)
}

// Stop cancels the pending boundary timer and halts further scheduling.
// Sub-timers already armed for the current slot are not retroactively
// cancelled; their callbacks check the running flag before acting.
// Calling Stop on a stopped clock is a no-op.
func (c *SlotClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	if c.boundary != nil {
		c.boundary.Stop()
		c.boundary = nil
	}
	log.Printf("SlotClock: stopped")
}

// IsRunning reports whether the clock is currently scheduling slots.
func (c *SlotClock) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetMode hot-swaps the mode descriptor. A running clock is restarted so
// the next boundary is computed on the new grid.
func (c *SlotClock) SetMode(mode *ModeDescriptor) error {
	if err := mode.Validate(); err != nil {
		return fmt.Errorf("invalid mode descriptor: %w", err)
	}
	c.mu.Lock()
	wasRunning := c.running
	if c.running {
		c.running = false
		if c.boundary != nil {
			c.boundary.Stop()
			c.boundary = nil
		}
	}
	c.mode = mode
	c.lastStartMs = 0
	if wasRunning {
		c.running = true
		c.scheduleNextLocked()
	}
	c.mu.Unlock()
	log.Printf("SlotClock: mode set to %s (slot %d ms)", mode.Name, mode.SlotMs)
	return nil
}

// Mode returns the active mode descriptor.
func (c *SlotClock) Mode() *ModeDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// GetCurrentSlotInfo returns the slot containing "now", or nil if the
// clock is stopped.
func (c *SlotClock) GetCurrentSlotInfo() *SlotInfo {
	c.mu.Lock()
	mode := c.mode
	running := c.running
	c.mu.Unlock()
	if !running {
		return nil
	}

	now := c.clock.Now()
	dayMs := msOfDay(now)
	phase := dayMs % mode.SlotMs
	startDayMs := dayMs - phase
	startMs := now.UnixMilli() - phase
	info := buildSlotInfo(mode, startMs, startDayMs)
	info.PhaseMs = phase
	return info
}

// scheduleNextLocked arms the timer for the smallest slot multiple strictly
// greater than the current time of day. Caller holds c.mu.
func (c *SlotClock) scheduleNextLocked() {
	now := c.clock.Now()
	dayMs := msOfDay(now)
	nextDayMs := (dayMs/c.mode.SlotMs + 1) * c.mode.SlotMs
	delay := nextDayMs - dayMs
	startMs := now.UnixMilli() + delay
	// time-of-day offset of the slot start, modulo 24h so the grid stays
	// UTC-aligned across midnight
	startDayMs := nextDayMs % msPerDay

	c.boundary = c.clock.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		c.onBoundary(startMs, startDayMs)
	})
}

func (c *SlotClock) onBoundary(startMs, startDayMs int64) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	mode := c.mode
	duplicate := startMs <= c.lastStartMs
	if !duplicate {
		c.lastStartMs = startMs
	}
	c.mu.Unlock()

	if !duplicate {
		if err := c.fireSlot(mode, startMs, startDayMs); err != nil {
			c.bus.Publish(Event{Type: EventError, Err: err})
		}
	}

	// Re-arm the next boundary regardless of how this slot went.
	c.mu.Lock()
	if c.running {
		c.scheduleNextLocked()
	}
	c.mu.Unlock()
}

// fireSlot emits slotStart and arms the per-slot sub-timers. A panic while
// building or scheduling is converted into an error return so one bad slot
// does not stop the grid.
func (c *SlotClock) fireSlot(mode *ModeDescriptor, startMs, startDayMs int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("slot scheduling failed: %v", r)
		}
	}()

	now := c.clock.Now()
	info := buildSlotInfo(mode, startMs, startDayMs)
	info.DriftMs = now.UnixMilli() - startMs
	info.PhaseMs = info.DriftMs

	if DebugMode {
		log.Printf("SlotClock: slot %s start (cycle %d, drift %d ms)", info.ID, info.CycleNumber, info.DriftMs)
	}
	c.bus.Publish(Event{Type: EventSlotStart, Slot: info})

	// encodeStart leads transmitStart by the encode advance so outgoing
	// text is ready before audio must begin
	encodeOffset := mode.TransmitTiming - mode.EncodeAdvance
	if encodeOffset < 0 {
		encodeOffset = 0
	}
	c.armSlotEvent(info, encodeOffset, Event{Type: EventEncodeStart, Slot: info})
	c.armSlotEvent(info, mode.TransmitTiming, Event{Type: EventTransmitStart, Slot: info})

	if len(mode.WindowTiming) == 0 {
		log.Printf("SlotClock: mode %s has no decode windows, skipping sub-window scheduling for slot %s", mode.Name, info.ID)
		return nil
	}
	for idx, offset := range mode.WindowTiming {
		// window offsets are relative to slot END and may be negative
		c.armSlotEvent(info, mode.SlotMs+offset, Event{Type: EventSubWindow, Slot: info, WindowIdx: idx})
	}
	return nil
}

// armSlotEvent schedules an event at startMs+offsetMs. Events whose time
// has already passed fire immediately in the caller's goroutine.
func (c *SlotClock) armSlotEvent(info *SlotInfo, offsetMs int64, ev Event) {
	delay := info.StartMs + offsetMs - c.clock.Now().UnixMilli()
	if delay <= 0 {
		c.bus.Publish(ev)
		return
	}
	c.clock.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		if !c.IsRunning() {
			return
		}
		c.bus.Publish(ev)
	})
}

func buildSlotInfo(mode *ModeDescriptor, startMs, startDayMs int64) *SlotInfo {
	cycle := mode.CycleNumberAt(startDayMs)
	return &SlotInfo{
		ID:          fmt.Sprintf("%s-%d-%d", mode.Name, cycle, startMs),
		StartMs:     startMs,
		CycleNumber: cycle,
		UTCSeconds:  startDayMs / 1000,
		ModeName:    mode.Name,
		Mode:        mode,
	}
}

// msOfDay returns the millisecond offset of t from UTC midnight.
func msOfDay(t time.Time) int64 {
	t = t.UTC()
	return int64(t.Hour())*3600000 + int64(t.Minute())*60000 +
		int64(t.Second())*1000 + int64(t.Nanosecond())/1e6
}
