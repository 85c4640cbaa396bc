package main

import "fmt"

// CycleType describes how transmit cycles are numbered for a mode.
type CycleType int

const (
	// CycleEvenOdd alternates between cycle 0 and cycle 1 (FT8, FT4).
	CycleEvenOdd CycleType = iota
	// CycleContinuous numbers every slot of the UTC day sequentially.
	CycleContinuous
)

// String returns the string representation of the cycle type.
func (c CycleType) String() string {
	switch c {
	case CycleEvenOdd:
		return "even_odd"
	case CycleContinuous:
		return "continuous"
	default:
		return "unknown"
	}
}

// ModeDescriptor contains the timing parameters of a digital mode.
// Descriptors are immutable; a mode change swaps the whole descriptor.
type ModeDescriptor struct {
	Name string
	// SlotMs is the slot length in milliseconds (FT8: 15000, FT4: 7500).
	SlotMs int64
	// WindowTiming holds decode sub-window offsets in milliseconds
	// relative to the slot END. Negative offsets schedule a decode pass
	// before the slot nominally ends.
	WindowTiming []int64
	// TransmitTiming is the offset from slot start, in milliseconds, at
	// which audio should begin.
	TransmitTiming int64
	// EncodeAdvance is how many milliseconds before TransmitTiming the
	// outgoing message text must be ready for the encoder.
	EncodeAdvance int64
	CycleType     CycleType
}

// GetModeDescriptor returns the descriptor for a mode by name.
func GetModeDescriptor(name string) (*ModeDescriptor, error) {
	switch name {
	case "FT8", "ft8":
		return &ModeDescriptor{
			Name:           "FT8",
			SlotMs:         15000,
			WindowTiming:   []int64{-3000, -1500, 0},
			TransmitTiming: 500,
			EncodeAdvance:  500,
			CycleType:      CycleEvenOdd,
		}, nil
	case "FT4", "ft4":
		return &ModeDescriptor{
			Name:           "FT4",
			SlotMs:         7500,
			WindowTiming:   []int64{-1500, 0},
			TransmitTiming: 300,
			EncodeAdvance:  300,
			CycleType:      CycleEvenOdd,
		}, nil
	default:
		return nil, fmt.Errorf("unknown mode: %s", name)
	}
}

// CycleNumberAt computes the cycle number for a slot starting at the given
// millisecond offset from UTC midnight.
//
// For even/odd modes the cycle is 0 in the first half of each double slot
// and 1 in the second half. For continuous modes it is the slot index
// within the UTC day.
func (m *ModeDescriptor) CycleNumberAt(dayMs int64) int64 {
	if m.SlotMs <= 0 {
		return 0
	}
	switch m.CycleType {
	case CycleEvenOdd:
		if dayMs%(2*m.SlotMs) < m.SlotMs {
			return 0
		}
		return 1
	default:
		return dayMs / m.SlotMs
	}
}

// Validate checks the descriptor for usable timing values.
func (m *ModeDescriptor) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("mode name is empty")
	}
	if m.SlotMs <= 0 {
		return fmt.Errorf("mode %s: slot length must be positive, got %d", m.Name, m.SlotMs)
	}
	if m.TransmitTiming < 0 || m.TransmitTiming >= m.SlotMs {
		return fmt.Errorf("mode %s: transmit timing %d outside slot", m.Name, m.TransmitTiming)
	}
	if m.EncodeAdvance < 0 {
		return fmt.Errorf("mode %s: encode advance must not be negative", m.Name)
	}
	return nil
}
