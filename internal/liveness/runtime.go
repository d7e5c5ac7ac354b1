package liveness

import (
	"sync"
	"time"
)

// Runtime — in-process «последнее живое устройство». Заменяет глобальное
// изменяемое состояние: конструируется один раз и передаётся явным образом
// тем, кому нужно читать/писать.
type Runtime struct {
	mu          sync.RWMutex
	deviceID    string
	firmware    string
	lastContact time.Time
}

type RuntimeSnapshot struct {
	DeviceID    string
	Firmware    string
	LastContact time.Time
}

func NewRuntime() *Runtime { return &Runtime{} }

func (r *Runtime) Touch(deviceID, firmware string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deviceID = deviceID
	if firmware != "" {
		r.firmware = firmware
	}
	r.lastContact = time.Now()
}

func (r *Runtime) Clear(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deviceID == deviceID {
		r.deviceID = ""
		r.firmware = ""
		r.lastContact = time.Time{}
	}
}

func (r *Runtime) Snapshot() RuntimeSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RuntimeSnapshot{DeviceID: r.deviceID, Firmware: r.firmware, LastContact: r.lastContact}
}

// ConnectedWithin reports whether any device contacted us inside the window.
func (r *Runtime) ConnectedWithin(window time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deviceID != "" && time.Since(r.lastContact) < window
}
