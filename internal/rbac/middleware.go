package rbac

import (
	"net/http"
)

// Require wraps a handler with a predicate over the request identity.
func Require(allow func(Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok || !allow(id) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireAdmin() func(http.Handler) http.Handler { return Require(IsAdmin) }

func RequireStudent() func(http.Handler) http.Handler { return Require(IsStudent) }

func RequireTeacherOrAdmin() func(http.Handler) http.Handler { return Require(IsTeacherOrAdmin) }
