package dtc

import (
	"testing"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"github.com/stretchr/testify/require"
)

func TestCurrentForVehicle_DictionaryLookup(t *testing.T) {
	gdb := newTestDB(t)

	require.NoError(t, gdb.Create(&models.DtcDictionary{
		DtcCode: "P0171", System: "Fuel", Description: "System Too Lean (Bank 1)",
	}).Error)
	require.NoError(t, gdb.Create(&models.DtcCurrent{VehicleID: 1, DtcCode: "P0171", StatusByte: 0x01, LastSeenAt: time.Now()}).Error)
	require.NoError(t, gdb.Create(&models.DtcCurrent{VehicleID: 1, DtcCode: "U9999", StatusByte: 0x02, LastSeenAt: time.Now()}).Error)

	views, err := CurrentForVehicle(gdb, 1)
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, "P0171", views[0].DtcCode)
	require.Equal(t, "System Too Lean (Bank 1)", views[0].Description)
	require.Equal(t, "Unknown fault", views[1].Description)
}

func TestCurrentForVehicle_Empty(t *testing.T) {
	gdb := newTestDB(t)

	views, err := CurrentForVehicle(gdb, 42)
	require.NoError(t, err)
	require.NotNil(t, views)
	require.Empty(t, views)
}
