package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/db"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/dtc"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/liveness"
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
		&models.Device{},
		&models.Vehicle{},
		&models.DiagSession{},
		&models.DtcCurrent{},
		&models.DtcResult{},
		&models.InfoResult{},
	))
	return gdb
}

func newTestManager(t *testing.T) (*Manager, *gorm.DB) {
	t.Helper()
	gdb := newTestDB(t)
	tracker := liveness.NewTracker(gdb, liveness.NewRuntime())
	mgr := NewManager(gdb, tracker, dtc.NewReconciler(gdb), 5*time.Minute)
	return mgr, gdb
}

func seedVehicle(t *testing.T, gdb *gorm.DB, deviceID string) int {
	t.Helper()
	require.NoError(t, gdb.Create(&models.Device{DeviceID: deviceID, IsActive: true}).Error)
	v := models.Vehicle{
		PlateNumber: "51A-12345",
		Brand:       "Toyota",
		Model:       "Vios",
		Year:        2019,
		IsActive:    true,
		DeviceID:    &deviceID,
	}
	require.NoError(t, gdb.Create(&v).Error)
	return v.VehicleID
}

func TestNormalizeAction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"READ_INFO", models.ActionReadInfo, true},
		{"read_dtc", models.ActionReadDTC, true},
		{"Clear_Dtc", models.ActionClearDTC, true},
		{"ReadDTC", models.ActionReadDTC, true},
		{"  ReadInfo  ", models.ActionReadInfo, true},
		{"", "", false},
		{"FORMAT_ECU", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizeAction(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("NormalizeAction(%q) = %q,%v want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestCreate_DefaultsAndValidation(t *testing.T) {
	mgr, gdb := newTestManager(t)
	vehicleID := seedVehicle(t, gdb, "DS32")

	id, err := mgr.Create(vehicleID, "read_dtc", "", 7)
	require.NoError(t, err)

	var s models.DiagSession
	require.NoError(t, gdb.First(&s, "session_id = ?", id).Error)
	require.Equal(t, models.StatusPending, s.Status)
	require.Equal(t, models.ActionReadDTC, s.ActionType)
	require.Equal(t, models.ProtocolOBDII, s.Protocol) // default
	require.Equal(t, "DS32", s.DeviceID)
	require.Equal(t, 7, s.CreatedByUserID)
}

func TestCreate_Rejections(t *testing.T) {
	mgr, gdb := newTestManager(t)
	vehicleID := seedVehicle(t, gdb, "DS32")

	_, err := mgr.Create(vehicleID, "READ_DTC", "OBDII", 0)
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = mgr.Create(vehicleID, "FORMAT_ECU", "OBDII", 1)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = mgr.Create(vehicleID, "READ_DTC", "CANFD", 1)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = mgr.Create(99999, "READ_DTC", "OBDII", 1)
	require.ErrorIs(t, err, ErrInvalidArgument)

	// vehicle without an assigned device
	v := models.Vehicle{Brand: "Honda", Model: "City", Year: 2020, IsActive: true}
	require.NoError(t, gdb.Create(&v).Error)
	_, err = mgr.Create(v.VehicleID, "READ_DTC", "OBDII", 1)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestClaim_RoundTrip(t *testing.T) {
	mgr, gdb := newTestManager(t)
	vehicleID := seedVehicle(t, gdb, "DS32")

	id, err := mgr.Create(vehicleID, "READ_DTC", "OBDII", 1)
	require.NoError(t, err)

	job, err := mgr.ClaimPendingForDevice("DS32")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, id, job.SessionID)
	require.Equal(t, models.ActionReadDTC, job.ActionType)
	require.Equal(t, "Toyota", job.Brand)
	require.Equal(t, "Vios", job.Model)
	require.Equal(t, 2019, job.Year)

	var s models.DiagSession
	require.NoError(t, gdb.First(&s, "session_id = ?", id).Error)
	require.Equal(t, models.StatusProcessing, s.Status)

	require.NoError(t, mgr.SubmitDtcs(id, "obdii", []dtc.Reported{{Code: "P0171", StatusByte: 0x01}}))
	require.NoError(t, mgr.Complete(id))

	require.NoError(t, gdb.First(&s, "session_id = ?", id).Error)
	require.Equal(t, models.StatusCompleted, s.Status)
	require.NotNil(t, s.CompletedAt)

	// second Complete must fail and change nothing
	err = mgr.Complete(id)
	require.ErrorIs(t, err, ErrInvalidState)
	var after models.DiagSession
	require.NoError(t, gdb.First(&after, "session_id = ?", id).Error)
	require.Equal(t, models.StatusCompleted, after.Status)
}

func TestClaim_NoJob(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedVehicle(t, gdb, "DS32")

	job, err := mgr.ClaimPendingForDevice("DS32")
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestClaim_OldestFirst(t *testing.T) {
	mgr, gdb := newTestManager(t)
	vehicleID := seedVehicle(t, gdb, "DS32")

	older := models.DiagSession{
		CreatedAt:  time.Now().Add(-2 * time.Minute),
		ActionType: models.ActionReadInfo,
		DeviceID:   "DS32", VehicleID: vehicleID,
		Protocol: models.ProtocolOBDII, Status: models.StatusPending,
	}
	require.NoError(t, gdb.Create(&older).Error)
	_, err := mgr.Create(vehicleID, "READ_DTC", "OBDII", 1)
	require.NoError(t, err)

	job, err := mgr.ClaimPendingForDevice("DS32")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, older.SessionID, job.SessionID)
}

func TestClaim_AtMostOnce(t *testing.T) {
	mgr, gdb := newTestManager(t)
	vehicleID := seedVehicle(t, gdb, "DS32")

	id, err := mgr.Create(vehicleID, "READ_DTC", "OBDII", 1)
	require.NoError(t, err)

	repo := mgr.Repo()
	won, err := repo.Claim(id)
	require.NoError(t, err)
	require.True(t, won)

	// the conditional update must lose once the status left PENDING
	won, err = repo.Claim(id)
	require.NoError(t, err)
	require.False(t, won)
}

func TestClaim_SweepsStaleProcessing(t *testing.T) {
	mgr, gdb := newTestManager(t)
	vehicleID := seedVehicle(t, gdb, "DS32")

	stale := models.DiagSession{
		CreatedAt:  time.Now().Add(-6 * time.Minute),
		ActionType: models.ActionReadDTC,
		DeviceID:   "DS32", VehicleID: vehicleID,
		Protocol: models.ProtocolOBDII, Status: models.StatusProcessing,
	}
	require.NoError(t, gdb.Create(&stale).Error)

	// another device's stale session must not be touched
	other := models.DiagSession{
		CreatedAt:  time.Now().Add(-10 * time.Minute),
		ActionType: models.ActionReadDTC,
		DeviceID:   "DS99", VehicleID: vehicleID,
		Protocol: models.ProtocolOBDII, Status: models.StatusProcessing,
	}
	require.NoError(t, gdb.Create(&other).Error)

	job, err := mgr.ClaimPendingForDevice("DS32")
	require.NoError(t, err)
	require.Nil(t, job)

	var s models.DiagSession
	require.NoError(t, gdb.First(&s, "session_id = ?", stale.SessionID).Error)
	require.Equal(t, models.StatusFailed, s.Status)

	s = models.DiagSession{}
	require.NoError(t, gdb.First(&s, "session_id = ?", other.SessionID).Error)
	require.Equal(t, models.StatusProcessing, s.Status)

	// a swept session never serves results
	err = mgr.SubmitDtcs(stale.SessionID, "OBDII", nil)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestClaim_FreshProcessingSurvivesSweep(t *testing.T) {
	mgr, gdb := newTestManager(t)
	vehicleID := seedVehicle(t, gdb, "DS32")

	fresh := models.DiagSession{
		CreatedAt:  time.Now().Add(-1 * time.Minute),
		ActionType: models.ActionReadDTC,
		DeviceID:   "DS32", VehicleID: vehicleID,
		Protocol: models.ProtocolOBDII, Status: models.StatusProcessing,
	}
	require.NoError(t, gdb.Create(&fresh).Error)

	_, err := mgr.ClaimPendingForDevice("DS32")
	require.NoError(t, err)

	var s models.DiagSession
	require.NoError(t, gdb.First(&s, "session_id = ?", fresh.SessionID).Error)
	require.Equal(t, models.StatusProcessing, s.Status)
}

func TestSubmit_StateAndProtocolGuards(t *testing.T) {
	mgr, gdb := newTestManager(t)
	vehicleID := seedVehicle(t, gdb, "DS32")

	id, err := mgr.Create(vehicleID, "READ_DTC", "KWP", 1)
	require.NoError(t, err)

	// PENDING: results are not legal yet
	err = mgr.SubmitDtcs(id, "KWP", nil)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = mgr.ClaimPendingForDevice("DS32")
	require.NoError(t, err)

	// wrong protocol
	err = mgr.SubmitDtcs(id, "OBDII", nil)
	require.ErrorIs(t, err, ErrProtocolMismatch)

	// case-insensitive match is fine
	require.NoError(t, mgr.SubmitDtcs(id, "kwp", nil))

	// unknown session
	err = mgr.SubmitDtcs(424242, "KWP", nil)
	require.ErrorIs(t, err, ErrNotFound)

	// invalid protocol value
	err = mgr.SubmitDtcs(id, "CANFD", nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSubmitInfo_ReplacesPreviousUpload(t *testing.T) {
	mgr, gdb := newTestManager(t)
	vehicleID := seedVehicle(t, gdb, "DS32")

	id, err := mgr.Create(vehicleID, "READ_INFO", "OBDII", 1)
	require.NoError(t, err)
	_, err = mgr.ClaimPendingForDevice("DS32")
	require.NoError(t, err)

	require.NoError(t, mgr.SubmitInfo(id, "OBDII", InfoReport{Vin: "VIN-1", CalID: "CAL-1", Cvn: "CVN-1"}))
	require.NoError(t, mgr.SubmitInfo(id, "OBDII", InfoReport{Vin: "VIN-2"}))

	info, err := mgr.Repo().InfoResults(id)
	require.NoError(t, err)
	require.Len(t, info, 1)
	require.Equal(t, "VIN", info[0].InfoKey)
	require.Equal(t, "VIN-2", info[0].InfoValue)
}

func TestComplete_UnknownSession(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.Complete(424242)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
