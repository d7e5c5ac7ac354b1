package livedata

import (
	"sync"
	"time"
)

// Frame — один кадр телеметрии двигателя. История не хранится: слот один,
// последняя запись побеждает.
type Frame struct {
	Rpm      float32 `json:"rpm"`
	Speed    float32 `json:"speed"`
	Coolant  float32 `json:"coolant"`
	Load     float32 `json:"load"`
	Iat      float32 `json:"iat"`
	Throttle float32 `json:"throttle"`
	Map      float32 `json:"map"`
}

type ReadState int

const (
	StateDisabled ReadState = iota
	StateWaiting            // enabled, no frame yet
	StateOK
)

// Relay — single-slot cache, gated by an enable flag. The mutex prevents a
// reader from observing a half-written frame; no ordering beyond "last write
// wins" is promised.
type Relay struct {
	mu        sync.RWMutex
	enabled   bool
	frame     *Frame
	updatedAt time.Time
	toggledAt time.Time
}

func NewRelay() *Relay { return &Relay{} }

// SetEnabled gates new pushes. Disabling keeps the last frame; it only stops
// updates and changes what Read reports.
func (r *Relay) SetEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = on
	r.toggledAt = time.Now()
}

func (r *Relay) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Push stores the frame when enabled; when disabled the frame is silently
// discarded (not an error). Returns whether the frame was stored.
func (r *Relay) Push(f Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return false
	}
	r.frame = &f
	r.updatedAt = time.Now()
	return true
}

// Read returns the relay state and, in StateOK, the frame plus its timestamp.
func (r *Relay) Read() (ReadState, Frame, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.enabled {
		return StateDisabled, Frame{}, time.Time{}
	}
	if r.frame == nil {
		return StateWaiting, Frame{}, time.Time{}
	}
	return StateOK, *r.frame, r.updatedAt
}
