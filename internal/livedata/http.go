package livedata

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/config"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/auth"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/liveness"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/metrics"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"github.com/gorilla/mux"
)

type HTTP struct {
	relay        *Relay
	runtime      *liveness.Runtime
	deviceKeys   map[string]string
	onlineWindow time.Duration
	jwtSecret    []byte
}

func NewHTTP(relay *Relay, rt *liveness.Runtime, deviceKeys map[string]string, onlineWindow time.Duration, jwtSecret []byte) *HTTP {
	return &HTTP{
		relay:        relay,
		runtime:      rt,
		deviceKeys:   deviceKeys,
		onlineWindow: onlineWindow,
		jwtSecret:    jwtSecret,
	}
}

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	// UI side (authenticated)
	ui := r.PathPrefix("/api/livedata").Subrouter()
	ui.Use(auth.Authorize(h.jwtSecret, models.RoleAdmin, models.RoleTechnician, models.RoleViewer))
	ui.HandleFunc("/start", h.start).Methods(http.MethodPost)
	ui.HandleFunc("/stop", h.stop).Methods(http.MethodPost)
	ui.HandleFunc("", h.get).Methods(http.MethodGet)

	// device side (device key)
	r.HandleFunc("/api/livedata/frame", h.push).Methods(http.MethodPost)
}

func (h *HTTP) start(w http.ResponseWriter, _ *http.Request) {
	if !h.runtime.ConnectedWithin(h.onlineWindow) {
		models.WriteProblem(w, http.StatusBadRequest, "Device offline", "no device contact inside the online window", nil)
		return
	}
	h.relay.SetEnabled(true)
	writeOK(w)
}

func (h *HTTP) stop(w http.ResponseWriter, _ *http.Request) {
	h.relay.SetEnabled(false)
	writeOK(w)
}

// push принимает кадр от устройства. Выключенный relay — не ошибка: кадр
// молча отбрасывается и устройству отвечаем ok.
func (h *HTTP) push(w http.ResponseWriter, r *http.Request) {
	deviceID := r.Header.Get("X-Device-Id")
	key := r.Header.Get("X-Device-Key")
	if expected, ok := config.DeviceKey(h.deviceKeys, deviceID); !ok || key == "" || key != expected {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid device key", nil)
		return
	}

	var f Frame
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad frame", err.Error(), nil)
		return
	}
	if h.relay.Push(f) {
		metrics.LiveFramesPushed.WithLabelValues("stored").Inc()
	} else {
		metrics.LiveFramesPushed.WithLabelValues("discarded").Inc()
	}
	writeOK(w)
}

func (h *HTTP) get(w http.ResponseWriter, _ *http.Request) {
	state, frame, ts := h.relay.Read()
	w.Header().Set("Content-Type", "application/json")
	switch state {
	case StateDisabled:
		_ = json.NewEncoder(w).Encode(map[string]any{"enabled": false})
	case StateWaiting:
		_ = json.NewEncoder(w).Encode(map[string]any{"enabled": true, "status": "waiting"})
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"enabled":   true,
			"status":    "ok",
			"timestamp": ts,
			"data":      frame,
		})
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
