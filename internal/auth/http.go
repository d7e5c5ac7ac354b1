package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DanhNguyenCTU/VehicleDiag/config"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/logs"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type HTTP struct {
	db  *gorm.DB
	cfg config.AuthConfig
}

func NewHTTP(db *gorm.DB, cfg config.AuthConfig) *HTTP { return &HTTP{db: db, cfg: cfg} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/auth/login", h.login).Methods(http.MethodPost)
}

func (h *HTTP) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Username == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "invalid login payload", nil)
		return
	}

	var user models.AppUser
	if err := h.db.Where("username = ?", in.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "bad credentials", nil)
			return
		}
		models.WriteProblem(w, http.StatusInternalServerError, "DB error", err.Error(), nil)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "bad credentials", nil)
		return
	}

	token, err := GenerateToken(user.ID, user.Username, user.Role,
		[]byte(h.cfg.JWTSecret), h.cfg.Issuer, h.cfg.Audience, h.cfg.TokenTTL)
	if err != nil {
		logs.Logger.Errorf("token issue: %v", err)
		models.WriteProblem(w, http.StatusInternalServerError, "Token error", "cannot issue token", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token": token,
		"user": map[string]any{
			"id":          user.ID,
			"username":    user.Username,
			"displayName": user.DisplayName,
			"role":        user.Role,
		},
	})
}
