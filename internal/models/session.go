package models

import "time"

// Session status values. PENDING and PROCESSING are the only non-terminal
// states; COMPLETED and FAILED are terminal.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Canonical action types. The create endpoint also accepts the wire aliases
// READ_INFO / READ_DTC / CLEAR_DTC case-insensitively.
const (
	ActionReadInfo = "ReadInfo"
	ActionReadDTC  = "ReadDTC"
	ActionClearDTC = "ClearDTC"
)

const (
	ProtocolOBDII = "OBDII"
	ProtocolKWP   = "KWP"
)

// DiagSession — one dispatched diagnostic job. Rows are never deleted; the
// table doubles as the audit trail.
type DiagSession struct {
	SessionID       int       `gorm:"column:session_id;primaryKey;autoIncrement"`
	CreatedAt       time.Time `gorm:"index"`
	ActionType      string    `gorm:"size:16"`
	DeviceID        string    `gorm:"column:device_id;index:idx_session_device_status,priority:1;size:64"`
	VehicleID       int       `gorm:"column:vehicle_id;index"`
	Protocol        string    `gorm:"size:8"`
	CreatedByUserID int
	Status          string `gorm:"size:16;index:idx_session_device_status,priority:2"`
	CompletedAt     *time.Time
}
