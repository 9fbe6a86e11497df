package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const operatorKey contextKey = "operator"

// RoleAdmin is the role allowed to issue refunds.
const RoleAdmin = "admin"

// Claims identify the store operator calling an admin endpoint.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireRole rejects requests without a valid HS256 bearer token carrying role.
func RequireRole(jwtSecret, role string) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	keyFunc := func(*jwt.Token) (any, error) { return []byte(jwtSecret), nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing authorization header", "auth_required")
				return
			}

			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "invalid authorization scheme", "auth_invalid_scheme")
				return
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(tokenString, claims, keyFunc)
			if err != nil || !token.Valid {
				writeAuthError(w, http.StatusUnauthorized, "invalid token", "auth_invalid")
				return
			}
			if claims.Role != role {
				writeAuthError(w, http.StatusForbidden, "insufficient role", "auth_forbidden")
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Operator returns the token subject of the authenticated caller.
func Operator(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(operatorKey).(string)
	return sub, ok
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"code":  code,
	})
}
