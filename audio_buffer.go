package main

import (
	"fmt"
	"sync"
)

// AudioRing is a fixed-capacity ring of mono 16-bit PCM addressed by
// absolute wall-clock time. Receivers append audio as it arrives; the slot
// scheduler reads windows back by epoch millisecond. Regions never written
// (or already overwritten) read back as silence, which decodes to nothing
// rather than failing the whole window.
type AudioRing struct {
	sampleRate int
	capacity   int64 // samples

	mu      sync.Mutex
	samples []int16
	// wrote tracks the highest absolute sample index written so reads
	// beyond it can be rejected instead of served stale
	wrote int64
}

// NewAudioRing creates a ring holding capacityMs of audio.
func NewAudioRing(sampleRate int, capacityMs int64) *AudioRing {
	capacity := int64(sampleRate) * capacityMs / 1000
	return &AudioRing{
		sampleRate: sampleRate,
		capacity:   capacity,
		samples:    make([]int16, capacity),
	}
}

// GetSampleRate returns the ring's sample rate.
func (r *AudioRing) GetSampleRate() int { return r.sampleRate }

// sampleIndex converts an epoch millisecond to an absolute sample index.
func (r *AudioRing) sampleIndex(ms int64) int64 {
	return ms * int64(r.sampleRate) / 1000
}

// Write appends PCM starting at the given epoch millisecond.
func (r *AudioRing) Write(startMs int64, pcm []int16) {
	start := r.sampleIndex(startMs)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range pcm {
		r.samples[(start+int64(i))%r.capacity] = s
	}
	if end := start + int64(len(pcm)); end > r.wrote {
		r.wrote = end
	}
}

// GetBuffer returns durationMs of PCM starting at the given epoch
// millisecond as little-endian 16-bit bytes.
func (r *AudioRing) GetBuffer(startMs, durationMs int64) ([]byte, error) {
	start := r.sampleIndex(startMs)
	count := int64(r.sampleRate) * durationMs / 1000
	if count > r.capacity {
		return nil, fmt.Errorf("window of %d ms exceeds ring capacity", durationMs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, count*2)
	for i := int64(0); i < count; i++ {
		idx := start + i
		var s int16
		// samples older than one ring length have been overwritten
		if idx >= 0 && idx < r.wrote && idx >= r.wrote-r.capacity {
			s = r.samples[idx%r.capacity]
		}
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out, nil
}
