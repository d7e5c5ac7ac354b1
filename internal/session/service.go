package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/dtc"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/liveness"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/logs"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/metrics"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"gorm.io/gorm"
)

// Manager владеет очередью диагностических сессий и их state machine. Claim и
// Complete пишутся условными UPDATE'ами, поэтому менеджер безопасен при
// конкурентных поллерах.
type Manager struct {
	db      *gorm.DB
	repo    *Repo
	tracker *liveness.Tracker
	rec     *dtc.Reconciler
	timeout time.Duration // PROCESSING older than this is swept to FAILED
}

func NewManager(db *gorm.DB, tracker *liveness.Tracker, rec *dtc.Reconciler, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Manager{
		db:      db,
		repo:    NewRepo(db),
		tracker: tracker,
		rec:     rec,
		timeout: timeout,
	}
}

// NormalizeAction приводит тип действия к каноническому виду. Принимаются
// канонические имена и wire-алиасы (READ_INFO и т.п.) без учёта регистра.
func NormalizeAction(s string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "READ_INFO", "READINFO":
		return models.ActionReadInfo, true
	case "READ_DTC", "READDTC":
		return models.ActionReadDTC, true
	case "CLEAR_DTC", "CLEARDTC":
		return models.ActionClearDTC, true
	default:
		return "", false
	}
}

func normalizeProtocol(s string) (string, bool) {
	p := strings.ToUpper(strings.TrimSpace(s))
	if p == "" {
		return models.ProtocolOBDII, true
	}
	if p == models.ProtocolOBDII || p == models.ProtocolKWP {
		return p, true
	}
	return "", false
}

// Create ставит новую сессию в очередь устройства, закреплённого за
// автомобилем. Возвращает id созданной сессии.
func (m *Manager) Create(vehicleID int, actionType, protocol string, creatorID int) (int, error) {
	if creatorID <= 0 {
		return 0, fmt.Errorf("%w: missing creator identity", ErrUnauthenticated)
	}

	action, ok := NormalizeAction(actionType)
	if !ok {
		return 0, fmt.Errorf("%w: action type %q", ErrInvalidArgument, actionType)
	}
	proto, ok := normalizeProtocol(protocol)
	if !ok {
		return 0, fmt.Errorf("%w: protocol %q", ErrInvalidArgument, protocol)
	}

	var vehicle models.Vehicle
	err := m.db.Where("vehicle_id = ? AND is_active = ?", vehicleID, true).First(&vehicle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: vehicle %d", ErrInvalidArgument, vehicleID)
		}
		return 0, err
	}
	if vehicle.DeviceID == nil || *vehicle.DeviceID == "" {
		return 0, fmt.Errorf("%w: vehicle %d has no assigned device", ErrInvalidArgument, vehicleID)
	}

	s := models.DiagSession{
		CreatedAt:       time.Now(),
		ActionType:      action,
		DeviceID:        *vehicle.DeviceID,
		VehicleID:       vehicle.VehicleID,
		Protocol:        proto,
		CreatedByUserID: creatorID,
		Status:          models.StatusPending,
	}
	if err := m.repo.Create(&s); err != nil {
		return 0, err
	}
	metrics.SessionsCreated.WithLabelValues(action).Inc()
	return s.SessionID, nil
}

// JobDescriptor — то, что устройство получает на poll.
type JobDescriptor struct {
	SessionID  int
	ActionType string
	Protocol   string
	VehicleID  int
	Brand      string
	Model      string
	Year       int
}

// ClaimPendingForDevice обрабатывает poll устройства: сначала ленивый sweep
// зависших PROCESSING-сессий этого устройства, затем выдача самой старой
// PENDING через атомарный claim. nil без ошибки = работы нет. Проигрыш CAS —
// не ошибка: просто берём следующего кандидата.
func (m *Manager) ClaimPendingForDevice(deviceID string) (*JobDescriptor, error) {
	swept, err := m.repo.SweepStale(deviceID, time.Now().Add(-m.timeout))
	if err != nil {
		return nil, err
	}
	if swept > 0 {
		metrics.SessionsSwept.Add(float64(swept))
		metrics.SessionsCompleted.WithLabelValues(models.StatusFailed).Add(float64(swept))
		logs.Logger.Warnf("swept %d stale sessions for device %s", swept, deviceID)
	}

	for {
		s, err := m.repo.OldestPending(deviceID)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, nil // no job
		}
		won, err := m.repo.Claim(s.SessionID)
		if err != nil {
			return nil, err
		}
		if !won {
			continue // another poller got there first
		}
		metrics.SessionsClaimed.Inc()

		var vehicle models.Vehicle
		if err := m.db.Where("vehicle_id = ?", s.VehicleID).First(&vehicle).Error; err != nil {
			_ = m.repo.MarkFailed(s.SessionID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: vehicle %d", ErrNotFound, s.VehicleID)
			}
			return nil, err
		}

		return &JobDescriptor{
			SessionID:  s.SessionID,
			ActionType: s.ActionType,
			Protocol:   s.Protocol,
			VehicleID:  vehicle.VehicleID,
			Brand:      vehicle.Brand,
			Model:      vehicle.Model,
			Year:       vehicle.Year,
		}, nil
	}
}

// checkSubmittable грузит сессию и проверяет статус/протокол отчёта.
func (m *Manager) checkSubmittable(sessionID int, reportedProtocol string) (*models.DiagSession, error) {
	proto, ok := normalizeProtocol(reportedProtocol)
	if !ok || strings.TrimSpace(reportedProtocol) == "" {
		return nil, fmt.Errorf("%w: protocol %q", ErrInvalidArgument, reportedProtocol)
	}
	s, err := m.repo.Find(sessionID)
	if err != nil {
		return nil, err
	}
	if !canFire(s.Status, eventSubmit) {
		return nil, fmt.Errorf("%w: session %d is %s", ErrInvalidState, sessionID, s.Status)
	}
	if !strings.EqualFold(s.Protocol, proto) {
		return nil, fmt.Errorf("%w: session %s, reported %s", ErrProtocolMismatch, s.Protocol, proto)
	}
	return s, nil
}

// SubmitDtcs передаёт отчёт реконсайлеру. При ошибке персистентности сессия
// детерминированно уводится в FAILED до того, как ошибка вернётся вызывающему:
// частично применённый отчёт не должен молча числиться за живой сессией.
func (m *Manager) SubmitDtcs(sessionID int, reportedProtocol string, reported []dtc.Reported) error {
	s, err := m.checkSubmittable(sessionID, reportedProtocol)
	if err != nil {
		return err
	}
	if err := m.rec.Reconcile(s.VehicleID, s.SessionID, s.Protocol, reported); err != nil {
		if ferr := m.repo.MarkFailed(s.SessionID); ferr != nil {
			logs.Logger.Errorf("mark session %d failed: %v", s.SessionID, ferr)
		}
		metrics.SessionsCompleted.WithLabelValues(models.StatusFailed).Inc()
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// InfoReport — факты об ЭБУ из одной info-выгрузки.
type InfoReport struct {
	Vin      string
	CalID    string
	Cvn      string
	Hardware string
}

func (m *Manager) SubmitInfo(sessionID int, reportedProtocol string, info InfoReport) error {
	s, err := m.checkSubmittable(sessionID, reportedProtocol)
	if err != nil {
		return err
	}

	var entries []models.InfoResult
	add := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			return
		}
		entries = append(entries, models.InfoResult{InfoKey: key, InfoLabel: key, InfoValue: val})
	}
	add("VIN", info.Vin)
	add("CALID", info.CalID)
	add("CVN", info.Cvn)
	add("HW", info.Hardware)

	if err := m.repo.ReplaceInfo(s.SessionID, entries); err != nil {
		if ferr := m.repo.MarkFailed(s.SessionID); ferr != nil {
			logs.Logger.Errorf("mark session %d failed: %v", s.SessionID, ferr)
		}
		metrics.SessionsCompleted.WithLabelValues(models.StatusFailed).Inc()
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Complete — PROCESSING→COMPLETED. Повторный вызов получает ErrInvalidState и
// ничего не меняет.
func (m *Manager) Complete(sessionID int) error {
	s, err := m.repo.Find(sessionID)
	if err != nil {
		return err
	}
	if !canFire(s.Status, eventComplete) {
		return fmt.Errorf("%w: session %d is %s", ErrInvalidState, sessionID, s.Status)
	}
	won, err := m.repo.Complete(s.SessionID, time.Now())
	if err != nil {
		return err
	}
	if !won {
		// состояние ушло между Find и UPDATE
		return fmt.Errorf("%w: session %d", ErrInvalidState, sessionID)
	}
	metrics.SessionsCompleted.WithLabelValues(models.StatusCompleted).Inc()
	return nil
}

// Repo exposes the underlying repository (results views).
func (m *Manager) Repo() *Repo { return m.repo }
