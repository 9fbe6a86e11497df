package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, method jwt.SigningMethod, key any, role string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestRequireRole(t *testing.T) {
	valid := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), RoleAdmin, valid), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), RoleAdmin, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"wrong algorithm", "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), RoleAdmin, valid), http.StatusUnauthorized},
		{"not admin", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), "customer", valid), http.StatusForbidden},
		{"admin", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), RoleAdmin, valid), http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var operator string
			handler := RequireRole(testSecret, RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				operator, _ = Operator(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodPost, "/refunds", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, "operator-1", operator)
			} else {
				assert.Contains(t, w.Body.String(), `"code"`)
			}
		})
	}
}
