package models

import "time"

// DtcCurrent — «активные» коды по автомобилю; ключ (vehicle_id, dtc_code).
// Mutated only through the reconciler.
type DtcCurrent struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	VehicleID  int    `gorm:"column:vehicle_id;index:idx_dtc_current_vehicle"`
	DtcCode    string `gorm:"column:dtc_code;size:16"`
	StatusByte uint8
	LastSeenAt time.Time
}

// DtcResult — append-only history, one row per (session, reported code).
type DtcResult struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	SessionID  int    `gorm:"column:session_id;index"`
	DtcCode    string `gorm:"column:dtc_code;size:16"`
	StatusByte uint8
	Protocol   string `gorm:"size:8"`
	CreatedAt  time.Time
}

// InfoResult — per-session ECU facts (VIN, CALID, ...); replaced wholesale on
// each info submission.
type InfoResult struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID int    `gorm:"column:session_id;index"`
	InfoKey   string `gorm:"size:32"`
	InfoLabel string `gorm:"size:64"`
	InfoValue string
}

type DtcDictionary struct {
	DtcCode     string `gorm:"column:dtc_code;primaryKey;size:16"`
	System      string `gorm:"size:32"`
	Scope       string `gorm:"size:32"`
	Description string
	Detail      string
	GroupCode   string `gorm:"size:16"`
}
