package fleet

import (
	"errors"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/auth"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// OnlineDevice — строка списка «кто на связи» для UI.
type OnlineDevice struct {
	DeviceID    string     `json:"deviceId"`
	VehicleName string     `json:"vehicleName"`
	LastSeenAt  *time.Time `json:"lastSeenAt"`
}

// OnlineDevices — активные устройства, видевшиеся позже threshold, в пределах
// scope вызывающего. Один запрос на все роли: scope сворачивает ветвление.
func (r *Repo) OnlineDevices(scope auth.Scope, threshold time.Time) ([]OnlineDevice, error) {
	q := r.db.Table("devices").
		Select("devices.device_id, vehicles.plate_number AS vehicle_name, devices.last_seen_at").
		Joins("JOIN vehicles ON vehicles.device_id = devices.device_id").
		Where("devices.is_active = ?", true).
		Where("devices.last_seen_at IS NOT NULL AND devices.last_seen_at > ?", threshold)
	q = scope.Filter(q, "vehicles.vehicle_id")

	var out []OnlineDevice
	if err := q.Scan(&out).Error; err != nil {
		return nil, err
	}
	if out == nil {
		out = []OnlineDevice{}
	}
	return out, nil
}

// LatestDevice — последнее видевшееся устройство в scope (для статус-панели).
func (r *Repo) LatestDevice(scope auth.Scope) (*models.Device, error) {
	q := r.db.Model(&models.Device{})
	if !scope.All {
		q = q.Joins("JOIN vehicles ON vehicles.device_id = devices.device_id")
		q = scope.Filter(q, "vehicles.vehicle_id")
	}
	var d models.Device
	err := q.Order("devices.last_seen_at DESC").First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *Repo) ActiveVehicle(vehicleID int) (*models.Vehicle, error) {
	var v models.Vehicle
	err := r.db.Where("vehicle_id = ? AND is_active = ?", vehicleID, true).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// LatestTelemetry — самая свежая GPS-точка устройства.
func (r *Repo) LatestTelemetry(deviceID string) (*models.Telemetry, error) {
	var t models.Telemetry
	err := r.db.Where("device_id = ?", deviceID).
		Order("created_at DESC").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
