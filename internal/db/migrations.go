// internal/db/migrations.go
package db

import (
	"fmt"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"gorm.io/gorm"
)

// MigrateDtcCurrentUniqueIndex enforces one snapshot row per (vehicle_id,
// dtc_code). AutoMigrate builds the columns; the composite unique index is
// per-dialect because of soft-delete semantics on older installs. Повторный
// запуск — no-op.
func MigrateDtcCurrentUniqueIndex(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	dialect := db.Dialector.Name()

	switch dialect {
	case "mysql":
		// у MySQL нет IF NOT EXISTS для индексов
		mig := db.Migrator()
		if mig.HasIndex(&models.DtcCurrent{}, "idx_dtc_current_vehicle") {
			_ = db.Exec("DROP INDEX `idx_dtc_current_vehicle` ON `dtc_currents`").Error
		}
		if mig.HasIndex(&models.DtcCurrent{}, "ux_dtc_currents_vehicle_code") {
			return nil
		}
		return db.Exec("CREATE UNIQUE INDEX `ux_dtc_currents_vehicle_code` ON `dtc_currents` (`vehicle_id`, `dtc_code`)").Error

	case "postgres":
		_ = db.Exec(`DROP INDEX IF EXISTS idx_dtc_current_vehicle`).Error
		return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_dtc_currents_vehicle_code ON "dtc_currents" ("vehicle_id", "dtc_code")`).Error

	case "sqlite":
		_ = db.Exec(`DROP INDEX IF EXISTS idx_dtc_current_vehicle`).Error
		return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_dtc_currents_vehicle_code ON dtc_currents (vehicle_id, dtc_code)`).Error

	default:
		return fmt.Errorf("unsupported dialect: %s", dialect)
	}
}
