package models

import "time"

const (
	RoleAdmin      = "Admin"
	RoleTechnician = "Technician"
	RoleViewer     = "Viewer"
)

type AppUser struct {
	ID           int    `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"uniqueIndex;size:64"`
	PasswordHash string
	DisplayName  string
	Role         string `gorm:"size:32"`
	CreatedAt    time.Time
}

// UserVehicle — назначение автомобиля пользователю (scope для Viewer).
type UserVehicle struct {
	ID         int `gorm:"primaryKey;autoIncrement"`
	UserID     int `gorm:"index:idx_user_vehicle,priority:1"`
	VehicleID  int `gorm:"index:idx_user_vehicle,priority:2"`
	AssignedAt time.Time
}
