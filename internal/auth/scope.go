package auth

import (
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"gorm.io/gorm"
)

// Scope — capability-scoped видимость автомобилей. Считается один раз на
// запрос и передаётся в слой запросов вместо ветвления по ролям в каждой
// ручке.
type Scope struct {
	All        bool
	VehicleIDs []int
}

// ScopeFor: Admin/Technician видят весь парк, Viewer — только назначенные
// автомобили.
func ScopeFor(db *gorm.DB, claims *Claims) (Scope, error) {
	if claims.Role != models.RoleViewer {
		return Scope{All: true}, nil
	}
	var ids []int
	err := db.Model(&models.UserVehicle{}).
		Where("user_id = ?", claims.UserID).
		Pluck("vehicle_id", &ids).Error
	if err != nil {
		return Scope{}, err
	}
	return Scope{VehicleIDs: ids}, nil
}

// CanSee reports whether the scope covers the given vehicle.
func (s Scope) CanSee(vehicleID int) bool {
	if s.All {
		return true
	}
	for _, id := range s.VehicleIDs {
		if id == vehicleID {
			return true
		}
	}
	return false
}

// Filter applies the scope to a query over a table with a vehicle_id column.
func (s Scope) Filter(q *gorm.DB, column string) *gorm.DB {
	if s.All {
		return q
	}
	if len(s.VehicleIDs) == 0 {
		// viewer with no assignments sees nothing
		return q.Where("1 = 0")
	}
	return q.Where(column+" IN ?", s.VehicleIDs)
}
