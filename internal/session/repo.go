package session

import (
	"errors"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Create(s *models.DiagSession) error { return r.db.Create(s).Error }

func (r *Repo) Find(id int) (*models.DiagSession, error) {
	var s models.DiagSession
	if err := r.db.Where("session_id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// SweepStale проваливает зависшие PROCESSING-сессии этого устройства (created
// раньше cutoff). Один UPDATE, скоуп по device_id: чужой бэклог не трогаем.
func (r *Repo) SweepStale(deviceID string, cutoff time.Time) (int64, error) {
	res := r.db.Model(&models.DiagSession{}).
		Where("device_id = ? AND status = ? AND created_at < ?",
			deviceID, models.StatusProcessing, cutoff).
		Update("status", models.StatusFailed)
	return res.RowsAffected, res.Error
}

// OldestPending — кандидат на выдачу: самая старая PENDING-сессия устройства.
func (r *Repo) OldestPending(deviceID string) (*models.DiagSession, error) {
	var s models.DiagSession
	err := r.db.
		Where("device_id = ? AND status = ?", deviceID, models.StatusPending).
		Order("created_at ASC, session_id ASC").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Claim — атомарный PENDING→PROCESSING. Условный UPDATE по текущему статусу:
// из двух конкурентных поллеров выигрывает ровно один (RowsAffected == 1).
func (r *Repo) Claim(sessionID int) (bool, error) {
	res := r.db.Model(&models.DiagSession{}).
		Where("session_id = ? AND status = ?", sessionID, models.StatusPending).
		Update("status", models.StatusProcessing)
	return res.RowsAffected == 1, res.Error
}

// Complete — атомарный PROCESSING→COMPLETED со штампом времени.
func (r *Repo) Complete(sessionID int, at time.Time) (bool, error) {
	res := r.db.Model(&models.DiagSession{}).
		Where("session_id = ? AND status = ?", sessionID, models.StatusProcessing).
		Updates(map[string]any{"status": models.StatusCompleted, "completed_at": at})
	return res.RowsAffected == 1, res.Error
}

func (r *Repo) MarkFailed(sessionID int) error {
	return r.db.Model(&models.DiagSession{}).
		Where("session_id = ?", sessionID).
		Update("status", models.StatusFailed).Error
}

// ReplaceInfo — delete-then-insert: очередная выгрузка info целиком заменяет
// предыдущую для этой сессии.
func (r *Repo) ReplaceInfo(sessionID int, entries []models.InfoResult) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).
			Delete(&models.InfoResult{}).Error; err != nil {
			return err
		}
		for i := range entries {
			entries[i].SessionID = sessionID
			if err := tx.Create(&entries[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repo) InfoResults(sessionID int) ([]models.InfoResult, error) {
	var out []models.InfoResult
	err := r.db.Where("session_id = ?", sessionID).Order("id").Find(&out).Error
	return out, err
}

func (r *Repo) DtcResults(sessionID int) ([]models.DtcResult, error) {
	var out []models.DtcResult
	err := r.db.Where("session_id = ?", sessionID).Order("id").Find(&out).Error
	return out, err
}
