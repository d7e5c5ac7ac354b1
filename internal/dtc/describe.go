package dtc

import (
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"gorm.io/gorm"
)

type CodeView struct {
	DtcCode     string `json:"dtcCode"`
	StatusByte  uint8  `json:"statusByte"`
	Description string `json:"description"`
}

// CurrentForVehicle возвращает снапшот автомобиля, обогащённый описаниями из
// справочника DTC; неизвестные коды получают "Unknown fault".
func CurrentForVehicle(db *gorm.DB, vehicleID int) ([]CodeView, error) {
	var rows []models.DtcCurrent
	if err := db.Where("vehicle_id = ?", vehicleID).
		Order("dtc_code").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []CodeView{}, nil
	}

	codes := make([]string, 0, len(rows))
	for _, c := range rows {
		codes = append(codes, c.DtcCode)
	}
	var dict []models.DtcDictionary
	if err := db.Where("dtc_code IN ?", codes).Find(&dict).Error; err != nil {
		return nil, err
	}
	desc := make(map[string]string, len(dict))
	for _, d := range dict {
		desc[d.DtcCode] = d.Description
	}

	out := make([]CodeView, 0, len(rows))
	for _, c := range rows {
		v := CodeView{DtcCode: c.DtcCode, StatusByte: c.StatusByte, Description: desc[c.DtcCode]}
		if v.Description == "" {
			v.Description = "Unknown fault"
		}
		out = append(out, v)
	}
	return out, nil
}
