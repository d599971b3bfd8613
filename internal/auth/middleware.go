package auth

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/prepverse/prepverse-lms/internal/rbac"
)

// JWTMiddleware validates the bearer token and attaches the caller's identity
// to the request context. Role and staff flag come from the users table, not
// the claims, so demotions take effect on the next request.
func JWTMiddleware(a *AuthService, db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			claims, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
			userID, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}

			id := rbac.Identity{ID: userID}
			var role sql.NullString
			err = db.QueryRowContext(r.Context(),
				`SELECT email, role, is_staff FROM users WHERE id=$1`, userID,
			).Scan(&id.Email, &role, &id.Staff)
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "unknown subject", http.StatusUnauthorized)
				return
			}
			if err != nil {
				http.Error(w, "auth lookup failed", http.StatusInternalServerError)
				return
			}
			id.Role = role.String

			next.ServeHTTP(w, r.WithContext(rbac.WithIdentity(r.Context(), id)))
		})
	}
}
