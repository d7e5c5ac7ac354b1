package liveness

import (
	"encoding/json"
	"net/http"

	"github.com/DanhNguyenCTU/VehicleDiag/config"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/metrics"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"github.com/gorilla/mux"
)

// HTTP — device-facing heartbeat endpoints. Ключ устройства приходит в теле
// или в заголовке X-Device-Key; тело имеет приоритет.
type HTTP struct {
	tracker    *Tracker
	deviceKeys map[string]string
}

func NewHTTP(tracker *Tracker, deviceKeys map[string]string) *HTTP {
	return &HTTP{tracker: tracker, deviceKeys: deviceKeys}
}

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/device").Subrouter()
	api.HandleFunc("/heartbeat", h.heartbeat).Methods(http.MethodPost)
	api.HandleFunc("/disconnect", h.disconnect).Methods(http.MethodPost)
}

func (h *HTTP) validKey(deviceID, key string) bool {
	expected, ok := config.DeviceKey(h.deviceKeys, deviceID)
	return ok && key != "" && key == expected
}

func (h *HTTP) heartbeat(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceID  string `json:"deviceId"`
		Firmware  string `json:"firmware"`
		DeviceKey string `json:"deviceKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.DeviceID == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad payload", "invalid heartbeat payload", nil)
		return
	}
	key := in.DeviceKey
	if key == "" {
		key = r.Header.Get("X-Device-Key")
	}
	if !h.validKey(in.DeviceID, key) {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid device key", nil)
		return
	}

	if err := h.tracker.UpsertContact(in.DeviceID, in.Firmware); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "DB error", err.Error(), nil)
		return
	}
	metrics.HeartbeatsReceived.WithLabelValues("http").Inc()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (h *HTTP) disconnect(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceID  string `json:"deviceId"`
		DeviceKey string `json:"deviceKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.DeviceID == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad payload", "invalid payload", nil)
		return
	}
	key := in.DeviceKey
	if key == "" {
		key = r.Header.Get("X-Device-Key")
	}
	if !h.validKey(in.DeviceID, key) {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid device key", nil)
		return
	}

	h.tracker.Runtime().Clear(in.DeviceID)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
