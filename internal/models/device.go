package models

import "time"

// Device — диагностический блок (ESP32), закреплённый за автомобилем.
type Device struct {
	DeviceID   string `gorm:"column:device_id;primaryKey;size:64"`
	CreatedAt  time.Time
	IsActive   bool
	LastSeenAt *time.Time `gorm:"index"`
	Firmware   string     `gorm:"size:64"`
}

type Vehicle struct {
	VehicleID   int `gorm:"column:vehicle_id;primaryKey;autoIncrement"`
	PlateNumber string
	Brand       string
	Model       string
	Year        int
	IsActive    bool
	DeviceID    *string `gorm:"column:device_id;index;size:64"`
	CreatedAt   time.Time
}

// Telemetry — last-known GPS fixes per device; only the newest row is read.
type Telemetry struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	DeviceID  string `gorm:"column:device_id;index;size:64"`
	Lat       float64
	Lng       float64
	EngineOn  *bool
	CreatedAt time.Time `gorm:"index"`
}
