package middleware

import (
	"context"
	"net/http"

	"github.com/chatrelay/internal/identity"
)

// Authenticate resolves the caller's identity via the provider and stores the
// user id in the request context. Requests without a valid identity are
// terminated with 401 and never reach the core.
func Authenticate(provider identity.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := provider.UserID(r)
			if err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
