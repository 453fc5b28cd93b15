package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/eventhub/internal/auth"
)

// TokenParser verifies a bearer token and returns the user id it carries.
type TokenParser interface {
	Parse(token string) (int64, error)
}

// Identify resolves an Authorization bearer token into an AuthContext.
// Requests without a token pass through anonymously; a token that does not
// verify is rejected with 401.
func Identify(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}
			userID, err := tokens.Parse(strings.TrimSpace(token))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
