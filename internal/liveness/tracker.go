package liveness

import (
	"errors"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"gorm.io/gorm"
)

var ErrUnknownDevice = errors.New("unknown device")

// Tracker записывает время последнего контакта устройства и отвечает на
// вопрос «онлайн ли оно» относительно заданного порога. Порог всегда приходит
// от вызывающего: короткое окно для UI и длинное для session-таймаута — это
// разные политики.
type Tracker struct {
	db *gorm.DB
	rt *Runtime
}

func NewTracker(db *gorm.DB, rt *Runtime) *Tracker {
	return &Tracker{db: db, rt: rt}
}

// RecordContact обновляет last_seen_at существующего устройства; отсутствующую
// запись НЕ создаёт (poll-транспорт). Firmware обновляется, если прислана.
func (t *Tracker) RecordContact(deviceID, firmware string) error {
	now := time.Now()
	updates := map[string]any{"last_seen_at": now}
	if firmware != "" {
		updates["firmware"] = firmware
	}
	res := t.db.Model(&models.Device{}).
		Where("device_id = ?", deviceID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUnknownDevice
	}
	t.rt.Touch(deviceID, firmware)
	return nil
}

// UpsertContact — heartbeat-транспорт: создаёт запись устройства при первом
// контакте.
func (t *Tracker) UpsertContact(deviceID, firmware string) error {
	now := time.Now()
	var dev models.Device
	err := t.db.Where("device_id = ?", deviceID).First(&dev).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		dev = models.Device{
			DeviceID:   deviceID,
			IsActive:   true,
			LastSeenAt: &now,
			Firmware:   firmware,
		}
		if err := t.db.Create(&dev).Error; err != nil {
			return err
		}
		t.rt.Touch(deviceID, firmware)
		return nil
	}
	dev.LastSeenAt = &now
	if firmware != "" {
		dev.Firmware = firmware
	}
	if err := t.db.Save(&dev).Error; err != nil {
		return err
	}
	t.rt.Touch(deviceID, firmware)
	return nil
}

// KnownActive reports whether the device exists and is active.
func (t *Tracker) KnownActive(deviceID string) (bool, error) {
	var n int64
	err := t.db.Model(&models.Device{}).
		Where("device_id = ? AND is_active = ?", deviceID, true).
		Count(&n).Error
	return n > 0, err
}

func (t *Tracker) Runtime() *Runtime { return t.rt }

// IsOnline — lastContact != nil && now-lastContact < threshold.
func IsOnline(lastSeen *time.Time, threshold time.Duration, now time.Time) bool {
	return lastSeen != nil && now.Sub(*lastSeen) < threshold
}
