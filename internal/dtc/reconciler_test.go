package dtc

import (
	"fmt"
	"testing"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/db"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.Open("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&models.DtcCurrent{},
		&models.DtcResult{},
		&models.DtcDictionary{},
	))
	return gdb
}

func currentCodes(t *testing.T, gdb *gorm.DB, vehicleID int) map[string]uint8 {
	t.Helper()
	var rows []models.DtcCurrent
	require.NoError(t, gdb.Where("vehicle_id = ?", vehicleID).Find(&rows).Error)
	out := make(map[string]uint8, len(rows))
	for _, r := range rows {
		out[r.DtcCode] = r.StatusByte
	}
	return out
}

func TestReconcile_DiffAgainstSnapshot(t *testing.T) {
	gdb := newTestDB(t)
	rec := NewReconciler(gdb)

	// leftover fault from an earlier session
	require.NoError(t, gdb.Create(&models.DtcCurrent{
		VehicleID: 1, DtcCode: "P0128", StatusByte: 0x01, LastSeenAt: time.Now().Add(-time.Hour),
	}).Error)

	err := rec.Reconcile(1, 10, models.ProtocolOBDII, []Reported{
		{Code: "P0171", StatusByte: 0x01},
		{Code: "P0300", StatusByte: 0x02},
	})
	require.NoError(t, err)

	got := currentCodes(t, gdb, 1)
	require.Equal(t, map[string]uint8{"P0171": 0x01, "P0300": 0x02}, got)

	var hist []models.DtcResult
	require.NoError(t, gdb.Where("session_id = ?", 10).Order("dtc_code").Find(&hist).Error)
	require.Len(t, hist, 2)
	require.Equal(t, "P0171", hist[0].DtcCode)
	require.Equal(t, "P0300", hist[1].DtcCode)
	require.Equal(t, models.ProtocolOBDII, hist[0].Protocol)
}

func TestReconcile_EmptyReportClearsSnapshot(t *testing.T) {
	gdb := newTestDB(t)
	rec := NewReconciler(gdb)

	require.NoError(t, gdb.Create(&models.DtcCurrent{VehicleID: 1, DtcCode: "P0128", StatusByte: 0x01, LastSeenAt: time.Now()}).Error)
	require.NoError(t, gdb.Create(&models.DtcCurrent{VehicleID: 1, DtcCode: "P0300", StatusByte: 0x02, LastSeenAt: time.Now()}).Error)
	// another vehicle keeps its snapshot
	require.NoError(t, gdb.Create(&models.DtcCurrent{VehicleID: 2, DtcCode: "P0420", StatusByte: 0x01, LastSeenAt: time.Now()}).Error)
	// history from a past session stays
	require.NoError(t, gdb.Create(&models.DtcResult{SessionID: 5, DtcCode: "P0128", StatusByte: 0x01, Protocol: models.ProtocolOBDII}).Error)

	require.NoError(t, rec.Reconcile(1, 11, models.ProtocolOBDII, nil))

	require.Empty(t, currentCodes(t, gdb, 1))
	require.Equal(t, map[string]uint8{"P0420": 0x01}, currentCodes(t, gdb, 2))

	var histCount int64
	require.NoError(t, gdb.Model(&models.DtcResult{}).Count(&histCount).Error)
	require.EqualValues(t, 1, histCount)
}

func TestReconcile_ResubmitUpdatesInPlace(t *testing.T) {
	gdb := newTestDB(t)
	rec := NewReconciler(gdb)

	require.NoError(t, rec.Reconcile(1, 10, models.ProtocolOBDII, []Reported{{Code: "P0171", StatusByte: 0x01}}))
	require.NoError(t, rec.Reconcile(1, 11, models.ProtocolOBDII, []Reported{{Code: "P0171", StatusByte: 0x03}}))

	var rows []models.DtcCurrent
	require.NoError(t, gdb.Where("vehicle_id = ?", 1).Find(&rows).Error)
	require.Len(t, rows, 1) // no duplicate snapshot row
	require.Equal(t, uint8(0x03), rows[0].StatusByte)

	// history keeps both uploads
	var histCount int64
	require.NoError(t, gdb.Model(&models.DtcResult{}).Where("dtc_code = ?", "P0171").Count(&histCount).Error)
	require.EqualValues(t, 2, histCount)
}

func TestReconcile_SkipsBlankCodes(t *testing.T) {
	gdb := newTestDB(t)
	rec := NewReconciler(gdb)

	err := rec.Reconcile(1, 10, models.ProtocolKWP, []Reported{
		{Code: "  P0101 ", StatusByte: 0x01},
		{Code: "   ", StatusByte: 0x7f},
		{Code: "", StatusByte: 0x7f},
	})
	require.NoError(t, err)

	got := currentCodes(t, gdb, 1)
	require.Equal(t, map[string]uint8{"P0101": 0x01}, got)
}
