package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/config"
)

// Client — reverse-геокодер поверх Nominatim.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
}

func NewClient(cfg config.GeocodeConfig) *Client {
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
	}
}

// ReverseAddress returns a display address for the coordinates, or "Unknown
// location" when the geocoder has nothing.
func (c *Client) ReverseAddress(ctx context.Context, lat, lng float64) (string, error) {
	url := fmt.Sprintf("%s/reverse?format=json&lat=%g&lon=%g", c.baseURL, lat, lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nominatim: status %d", resp.StatusCode)
	}

	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.DisplayName == "" {
		return "Unknown location", nil
	}
	return body.DisplayName, nil
}
