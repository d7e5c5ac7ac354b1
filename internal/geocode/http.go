package geocode

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"github.com/gorilla/mux"
)

type HTTP struct{ client *Client }

func NewHTTP(c *Client) *HTTP { return &HTTP{client: c} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/geocode", h.reverse).Methods(http.MethodGet)
}

func (h *HTTP) reverse(w http.ResponseWriter, r *http.Request) {
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err1 != nil || err2 != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "lat and lng query params required", nil)
		return
	}

	address, err := h.client.ReverseAddress(r.Context(), lat, lng)
	if err != nil {
		models.WriteProblem(w, http.StatusBadGateway, "Geocoder error", err.Error(), nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"latitude":  lat,
		"longitude": lng,
		"address":   address,
	})
}
