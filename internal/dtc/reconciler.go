package dtc

import (
	"strings"
	"sync"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"gorm.io/gorm"
)

// Reported — одна пара (код, статус-байт) из отчёта устройства.
type Reported struct {
	Code       string
	StatusByte uint8
}

// Reconciler сводит снапшот «текущих» кодов автомобиля с очередным отчётом.
// Снапшот мутируется только здесь; история только дописывается. Сведения по
// одному автомобилю сериализуются между собой, разные автомобили независимы.
type Reconciler struct {
	db *gorm.DB

	mu sync.Mutex
	// записи не вымываются: карта растёт максимум до числа автомобилей,
	// когда-либо присылавших отчёт (один голый мьютекс на запись)
	locks map[int]*sync.Mutex
}

func NewReconciler(db *gorm.DB) *Reconciler {
	return &Reconciler{db: db, locks: make(map[int]*sync.Mutex)}
}

func (r *Reconciler) vehicleLock(vehicleID int) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[vehicleID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[vehicleID] = l
	}
	return l
}

// Reconcile применяет один отчёт как единое целое:
//  1. снапшот-строки с кодами вне отчёта удаляются (fault cleared);
//  2. каждая пара дописывается в историю и upsert-ится в снапшот.
//
// Пустой отчёт означает «неисправностей нет» и по той же diff-логике убирает
// весь снапшот автомобиля; историю прошлых сессий он не трогает.
func (r *Reconciler) Reconcile(vehicleID, sessionID int, protocol string, reported []Reported) error {
	lock := r.vehicleLock(vehicleID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()

	// distinct trimmed non-empty codes
	incoming := make([]string, 0, len(reported))
	seen := make(map[string]struct{}, len(reported))
	items := make([]Reported, 0, len(reported))
	for _, d := range reported {
		code := strings.TrimSpace(d.Code)
		if code == "" {
			continue
		}
		items = append(items, Reported{Code: code, StatusByte: d.StatusByte})
		if _, dup := seen[code]; !dup {
			seen[code] = struct{}{}
			incoming = append(incoming, code)
		}
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		// 1) drop cleared faults
		del := tx.Where("vehicle_id = ?", vehicleID)
		if len(incoming) > 0 {
			del = del.Where("dtc_code NOT IN ?", incoming)
		}
		if err := del.Delete(&models.DtcCurrent{}).Error; err != nil {
			return err
		}

		// 2) history + snapshot upsert per reported pair
		for _, d := range items {
			h := models.DtcResult{
				SessionID:  sessionID,
				DtcCode:    d.Code,
				StatusByte: d.StatusByte,
				Protocol:   protocol,
			}
			if err := tx.Create(&h).Error; err != nil {
				return err
			}

			res := tx.Model(&models.DtcCurrent{}).
				Where("vehicle_id = ? AND dtc_code = ?", vehicleID, d.Code).
				Updates(map[string]any{"status_byte": d.StatusByte, "last_seen_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				cur := models.DtcCurrent{
					VehicleID:  vehicleID,
					DtcCode:    d.Code,
					StatusByte: d.StatusByte,
					LastSeenAt: now,
				}
				if err := tx.Create(&cur).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}
