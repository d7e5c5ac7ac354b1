package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"

	"github.com/gorilla/mux"
)

type ctxKey string

const claimsKey ctxKey = "auth_claims"

// Authorize проверяет Bearer-токен и (опционально) роль.
// Пустой список ролей = любой аутентифицированный пользователь.
func Authorize(secret []byte, roles ...string) mux.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token", nil)
				return
			}
			claims, err := ParseToken(strings.TrimPrefix(h, "Bearer "), secret)
			if err != nil {
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid token", nil)
				return
			}
			if len(allowed) > 0 {
				if _, ok := allowed[claims.Role]; !ok {
					models.WriteProblem(w, http.StatusForbidden, "Forbidden", "insufficient role", nil)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

func GetClaims(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}
