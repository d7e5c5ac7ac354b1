package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/config"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newLoginServer(t *testing.T) *httptest.Server {
	t.Helper()
	gdb := newTestDB(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, gdb.Create(&models.AppUser{
		Username:     "tech1",
		PasswordHash: string(hash),
		DisplayName:  "Tech One",
		Role:         models.RoleTechnician,
	}).Error)

	r := mux.NewRouter()
	NewHTTP(gdb, config.AuthConfig{
		JWTSecret: "login-test-secret",
		Issuer:    "vehiclediag",
		Audience:  "vehiclediag-api",
		TokenTTL:  time.Hour,
	}).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postLogin(t *testing.T, srv *httptest.Server, username, password string) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestLogin_IssuesParsableToken(t *testing.T) {
	srv := newLoginServer(t)

	resp := postLogin(t, srv, "tech1", "s3cret")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
		User  struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "tech1", out.User.Username)
	require.Equal(t, models.RoleTechnician, out.User.Role)

	claims, err := ParseToken(out.Token, []byte("login-test-secret"))
	require.NoError(t, err)
	require.Equal(t, "tech1", claims.Username)
	require.Equal(t, models.RoleTechnician, claims.Role)
}

func TestLogin_BadCredentials(t *testing.T) {
	srv := newLoginServer(t)

	// неверный пароль и неизвестный пользователь дают один и тот же ответ
	resp := postLogin(t, srv, "tech1", "wrong")
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postLogin(t, srv, "ghost", "s3cret")
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthorize_RoleAllowList(t *testing.T) {
	secret := []byte("mw-secret")

	r := mux.NewRouter()
	protected := Authorize(secret, models.RoleAdmin)
	r.Handle("/admin", protected(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r.Context())
		require.True(t, ok)
		w.Write([]byte(claims.Username))
	}))).Methods(http.MethodGet)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	get := func(authz string) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/admin", nil)
		require.NoError(t, err)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	adminTok, err := GenerateToken(1, "admin", models.RoleAdmin, secret, "vehiclediag", "vehiclediag-api", time.Hour)
	require.NoError(t, err)
	viewerTok, err := GenerateToken(2, "viewer", models.RoleViewer, secret, "vehiclediag", "vehiclediag-api", time.Hour)
	require.NoError(t, err)

	require.Equal(t, http.StatusUnauthorized, get(""))
	require.Equal(t, http.StatusUnauthorized, get("Bearer garbage"))
	require.Equal(t, http.StatusForbidden, get("Bearer "+viewerTok))
	require.Equal(t, http.StatusOK, get("Bearer "+adminTok))
}
