package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/filedrop/internal/server/auth"
)

type contextKey string

const userContextKey contextKey = "user"

// AuthMiddleware resolves the verified user identity from a bearer token.
type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(secret []byte) *AuthMiddleware {
	return &AuthMiddleware{secret: secret}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// user id in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		userID, err := auth.GetUserIDFromToken(tokenString, m.secret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the authenticated user id, or "" when the request
// did not pass RequireAuth.
func UserFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userContextKey).(string)
	return userID
}
