package fleet

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/auth"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/dtc"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/liveness"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// HTTP — read-only ручки парка: кто онлайн, статус «последнего» устройства,
// мониторинг автомобиля (позиция, текущие DTC).
type HTTP struct {
	db           *gorm.DB
	repo         *Repo
	onlineWindow time.Duration
	jwtSecret    []byte
}

func NewHTTP(db *gorm.DB, onlineWindow time.Duration, jwtSecret []byte) *HTTP {
	return &HTTP{db: db, repo: NewRepo(db), onlineWindow: onlineWindow, jwtSecret: jwtSecret}
}

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	mw := auth.Authorize(h.jwtSecret, models.RoleAdmin, models.RoleTechnician, models.RoleViewer)

	devices := r.PathPrefix("/api/devices").Subrouter()
	devices.Use(mw)
	devices.HandleFunc("/online", h.onlineDevices).Methods(http.MethodGet)

	system := r.PathPrefix("/api/system").Subrouter()
	system.Use(mw)
	system.HandleFunc("/health", h.health).Methods(http.MethodGet)
	system.HandleFunc("/status", h.status).Methods(http.MethodGet)

	monitor := r.PathPrefix("/api/monitor").Subrouter()
	monitor.Use(mw)
	monitor.HandleFunc("/vehicle/{id:[0-9]+}/location", h.location).Methods(http.MethodGet)
	monitor.HandleFunc("/vehicle/{id:[0-9]+}/dtc", h.currentDtcs).Methods(http.MethodGet)
}

func (h *HTTP) scope(r *http.Request) (auth.Scope, bool, *auth.Claims) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		return auth.Scope{}, false, nil
	}
	s, err := auth.ScopeFor(h.db, claims)
	if err != nil {
		return auth.Scope{}, false, claims
	}
	return s, true, claims
}

func (h *HTTP) onlineDevices(w http.ResponseWriter, r *http.Request) {
	scope, ok, _ := h.scope(r)
	if !ok {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "missing identity", nil)
		return
	}
	threshold := time.Now().Add(-h.onlineWindow)
	devices, err := h.repo.OnlineDevices(scope, threshold)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "DB error", err.Error(), nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(devices)
}

func (h *HTTP) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *HTTP) status(w http.ResponseWriter, r *http.Request) {
	scope, ok, _ := h.scope(r)
	if !ok {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "missing identity", nil)
		return
	}
	dev, err := h.repo.LatestDevice(scope)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "DB error", err.Error(), nil)
		return
	}
	if dev == nil {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "no device found", nil)
		return
	}

	status := "disconnected"
	if liveness.IsOnline(dev.LastSeenAt, h.onlineWindow, time.Now()) {
		status = "connected"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"deviceId":    dev.DeviceID,
		"status":      status,
		"lastSeenUtc": dev.LastSeenAt,
	})
}

// vehicleInScope грузит активный автомобиль и проверяет право вызывающего его
// видеть.
func (h *HTTP) vehicleInScope(w http.ResponseWriter, r *http.Request) (*models.Vehicle, bool) {
	scope, ok, _ := h.scope(r)
	if !ok {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "missing identity", nil)
		return nil, false
	}
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	vehicle, err := h.repo.ActiveVehicle(id)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "DB error", err.Error(), nil)
		return nil, false
	}
	if vehicle == nil {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "vehicle not found", nil)
		return nil, false
	}
	if !scope.CanSee(vehicle.VehicleID) {
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "vehicle not in scope", nil)
		return nil, false
	}
	return vehicle, true
}

func (h *HTTP) location(w http.ResponseWriter, r *http.Request) {
	vehicle, ok := h.vehicleInScope(w, r)
	if !ok {
		return
	}
	if vehicle.DeviceID == nil || *vehicle.DeviceID == "" {
		models.WriteProblem(w, http.StatusBadRequest, "No device", "no device assigned", nil)
		return
	}
	latest, err := h.repo.LatestTelemetry(*vehicle.DeviceID)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "DB error", err.Error(), nil)
		return
	}
	if latest == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"lat":       latest.Lat,
		"lng":       latest.Lng,
		"engineOn":  latest.EngineOn,
		"createdAt": latest.CreatedAt,
	})
}

func (h *HTTP) currentDtcs(w http.ResponseWriter, r *http.Request) {
	vehicle, ok := h.vehicleInScope(w, r)
	if !ok {
		return
	}
	codes, err := dtc.CurrentForVehicle(h.db, vehicle.VehicleID)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "DB error", err.Error(), nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(codes)
}
