package middleware

import (
	"context"
	"net/http"

	"github.com/platewise/cartpay/pkg/httputil"
)

type userIDKey struct{}

// UserHeader is the header the mobile clients send to identify the customer.
// Carts and payment history are scoped to this ID.
const UserHeader = "X-User-ID"

// RequireUser extracts the customer ID from the X-User-ID header, rejects
// requests without one, and stores it in the request context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserHeader)
		if userID == "" {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
				Error: &httputil.ErrorResponse{
					Code:    "MISSING_USER",
					Message: "X-User-ID header is required",
				},
			})
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the customer ID set by RequireUser, or "".
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey{}).(string); ok {
		return v
	}
	return ""
}
