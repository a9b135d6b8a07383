package appMiddleware

import (
	"context"
	"log"
	"net/http"

	"CommuneChat/server/internal/auth"
)

type contextKey string

// UserIDKey carries the authenticated user's id through the request context.
const UserIDKey contextKey = "user_id"

// TokenKey carries the raw bearer token so logout can blacklist it.
const TokenKey contextKey = "token"

// AuthMiddleware validates the access token on every request of the group
// and threads the resolved identity through the request context.
func AuthMiddleware(next http.Handler) http.Handler {
	return requireKind(next, auth.KindAccess)
}

// RefreshMiddleware is the same check for the token-refresh endpoint, which
// expects a refresh token instead.
func RefreshMiddleware(next http.Handler) http.Handler {
	return requireKind(next, auth.KindRefresh)
}

func requireKind(next http.Handler, kind string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			log.Printf("Missing bearer token for %s %s", r.Method, r.URL.Path)
			http.Error(w, "Missing token", http.StatusUnauthorized)
			return
		}

		claims, err := auth.VerifyToken(tokenStr, kind)
		if err != nil {
			log.Printf("Invalid token for %s %s: %v", r.Method, r.URL.Path, err)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID())
		ctx = context.WithValue(ctx, TokenKey, tokenStr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated user id placed by the
// middleware, or false when the request was not authenticated.
func UserIDFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(UserIDKey).(int)
	return id, ok
}

func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
