package main

import "time"

// ClockSource abstracts wall-clock reads and timer arming so the slot clock
// can be driven deterministically by a fake clock in tests.
type ClockSource interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) ClockTimer
}

// ClockTimer is a pending timer that can be cancelled before it fires.
type ClockTimer interface {
	Stop() bool
}

type systemClock struct{}

// NewSystemClock returns a ClockSource backed by the real wall clock.
func NewSystemClock() ClockSource {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) ClockTimer {
	return time.AfterFunc(d, f)
}
