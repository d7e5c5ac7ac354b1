package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/DanhNguyenCTU/VehicleDiag/config"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/auth"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/dtc"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/liveness"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/metrics"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

/*
Session endpoints.

UI (JWT):
  POST /api/sessions                      {vehicleId, actionType, protocol?} -> {sessionId}
  GET  /api/sessions/{id}/results

Device (per-device shared key on /pending; session id is the capability for
the submit/complete calls, as in the device firmware protocol):
  POST /api/sessions/pending              {deviceId, deviceKey, firmware} -> job descriptor | 204
  POST /api/sessions/{id}/dtcs            {protocol, dtcs:[{dtcCode, statusByte}]}
  POST /api/sessions/{id}/info            {protocol, vin?, calId?, cvn?, hardware?}
  POST /api/sessions/{id}/complete
*/

type HTTP struct {
	db         *gorm.DB
	mgr        *Manager
	tracker    *liveness.Tracker
	deviceKeys map[string]string
	jwtSecret  []byte
}

func NewHTTP(db *gorm.DB, mgr *Manager, tracker *liveness.Tracker, deviceKeys map[string]string, jwtSecret []byte) *HTTP {
	return &HTTP{db: db, mgr: mgr, tracker: tracker, deviceKeys: deviceKeys, jwtSecret: jwtSecret}
}

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	authAny := auth.Authorize(h.jwtSecret)

	r.Handle("/api/sessions", authAny(http.HandlerFunc(h.create))).Methods(http.MethodPost)
	r.Handle("/api/sessions/{id:[0-9]+}/results", authAny(http.HandlerFunc(h.results))).Methods(http.MethodGet)

	r.HandleFunc("/api/sessions/pending", h.pending).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id:[0-9]+}/dtcs", h.submitDtcs).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id:[0-9]+}/info", h.submitInfo).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id:[0-9]+}/complete", h.complete).Methods(http.MethodPost)
}

// ── UI → create ─────────────────────────────────────────────

func (h *HTTP) create(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "missing identity", nil)
		return
	}
	var in struct {
		VehicleID  int    `json:"vehicleId"`
		ActionType string `json:"actionType"`
		Protocol   string `json:"protocol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}

	id, err := h.mgr.Create(in.VehicleID, in.ActionType, in.Protocol, claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"sessionId": id})
}

// ── device → poll ───────────────────────────────────────────

func (h *HTTP) pending(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceID  string `json:"deviceId"`
		DeviceKey string `json:"deviceKey"`
		Firmware  string `json:"firmware"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.DeviceID == "" || in.DeviceKey == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad payload", "deviceId and deviceKey required", nil)
		return
	}
	expected, ok := config.DeviceKey(h.deviceKeys, in.DeviceID)
	if !ok || expected == "" || expected != in.DeviceKey {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid device key", nil)
		return
	}

	if err := h.tracker.RecordContact(in.DeviceID, in.Firmware); err != nil {
		if errors.Is(err, liveness.ErrUnknownDevice) {
			models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "unknown device", map[string]string{"deviceId": in.DeviceID})
			return
		}
		models.WriteProblem(w, http.StatusInternalServerError, "DB error", err.Error(), nil)
		return
	}
	metrics.HeartbeatsReceived.WithLabelValues("http").Inc()

	job, err := h.mgr.ClaimPendingForDevice(in.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"sessionId":  job.SessionID,
		"actionType": job.ActionType,
		"protocol":   job.Protocol,
		"brand":      job.Brand,
		"model":      job.Model,
		"year":       job.Year,
	})
}

// ── device → submit / complete ──────────────────────────────

func (h *HTTP) submitDtcs(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	var in struct {
		Protocol string `json:"protocol"`
		Dtcs     []struct {
			DtcCode    string `json:"dtcCode"`
			StatusByte uint8  `json:"statusByte"`
		} `json:"dtcs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}

	reported := make([]dtc.Reported, 0, len(in.Dtcs))
	for _, d := range in.Dtcs {
		reported = append(reported, dtc.Reported{Code: d.DtcCode, StatusByte: d.StatusByte})
	}
	if err := h.mgr.SubmitDtcs(id, in.Protocol, reported); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (h *HTTP) submitInfo(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	var in struct {
		Protocol string `json:"protocol"`
		Vin      string `json:"vin"`
		CalID    string `json:"calId"`
		Cvn      string `json:"cvn"`
		Hardware string `json:"hardware"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	err := h.mgr.SubmitInfo(id, in.Protocol, InfoReport{
		Vin:      in.Vin,
		CalID:    in.CalID,
		Cvn:      in.Cvn,
		Hardware: in.Hardware,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (h *HTTP) complete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	if err := h.mgr.Complete(id); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// ── UI → results ────────────────────────────────────────────

func (h *HTTP) results(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetClaims(r.Context())
	scope, err := auth.ScopeFor(h.db, claims)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "DB error", err.Error(), nil)
		return
	}

	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	s, err := h.mgr.Repo().Find(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !scope.CanSee(s.VehicleID) {
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "vehicle not in scope", nil)
		return
	}

	var vehicle models.Vehicle
	if err := h.db.Where("vehicle_id = ?", s.VehicleID).First(&vehicle).Error; err != nil {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "vehicle not found", nil)
		return
	}
	info, err := h.mgr.Repo().InfoResults(id)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "DB error", err.Error(), nil)
		return
	}
	dtcs, err := h.mgr.Repo().DtcResults(id)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "DB error", err.Error(), nil)
		return
	}

	type infoItem struct {
		Key   string `json:"key"`
		Label string `json:"label"`
		Value string `json:"value"`
	}
	type dtcItem struct {
		Code       string `json:"code"`
		StatusByte uint8  `json:"statusByte"`
		Protocol   string `json:"protocol"`
	}
	out := struct {
		SessionID  int        `json:"sessionId"`
		DeviceID   string     `json:"deviceId"`
		Status     string     `json:"status"`
		ActionType string     `json:"actionType"`
		Vehicle    any        `json:"vehicle"`
		Info       []infoItem `json:"info"`
		Dtcs       []dtcItem  `json:"dtcs"`
	}{
		SessionID:  s.SessionID,
		DeviceID:   s.DeviceID,
		Status:     s.Status,
		ActionType: s.ActionType,
		Vehicle: map[string]any{
			"vehicleId": vehicle.VehicleID,
			"brand":     vehicle.Brand,
			"model":     vehicle.Model,
			"year":      vehicle.Year,
		},
		Info: []infoItem{},
		Dtcs: []dtcItem{},
	}
	for _, i := range info {
		out.Info = append(out.Info, infoItem{Key: i.InfoKey, Label: i.InfoLabel, Value: i.InfoValue})
	}
	for _, d := range dtcs {
		out.Dtcs = append(out.Dtcs, dtcItem{Code: d.DtcCode, StatusByte: d.StatusByte, Protocol: d.Protocol})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// ── helpers ─────────────────────────────────────────────────

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// writeError maps the failure classes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		models.WriteProblem(w, http.StatusBadRequest, "Invalid argument", err.Error(), nil)
	case errors.Is(err, ErrUnauthenticated):
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		models.WriteProblem(w, http.StatusNotFound, "Not found", err.Error(), nil)
	case errors.Is(err, ErrInvalidState):
		models.WriteProblem(w, http.StatusConflict, "Invalid state", err.Error(), nil)
	case errors.Is(err, ErrProtocolMismatch):
		models.WriteProblem(w, http.StatusBadRequest, "Protocol mismatch", err.Error(), nil)
	case errors.Is(err, ErrPersistence):
		models.WriteProblem(w, http.StatusInternalServerError, "Persistence failure", err.Error(), nil)
	default:
		models.WriteProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), nil)
	}
}
