package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/01moynul/taptosell-orders/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(tokens *auth.TokenService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	whoami := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userID": c.GetString(UserIDKey), "role": c.GetString(UserRoleKey)})
	}
	r.GET("/me", AuthMiddleware(tokens), whoami)
	r.GET("/maybe", OptionalAuth(tokens), whoami)
	r.GET("/staff", AuthMiddleware(tokens), RequireRole(auth.RoleSeller, auth.RoleAdmin), whoami)
	return r
}

func get(r *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewTokenService("secret", time.Hour)
	r := newTestRouter(tokens)

	token, err := tokens.GenerateToken("user-7", auth.RoleCustomer)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, "/me", tt.header)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	w := get(r, "/me", "Bearer "+token)
	assert.JSONEq(t, `{"userID":"user-7","role":"customer"}`, w.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	tokens := auth.NewTokenService("secret", time.Hour)
	r := newTestRouter(tokens)

	w := get(r, "/maybe", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userID":"","role":""}`, w.Body.String())

	w = get(r, "/maybe", "Bearer garbage")
	require.Equal(t, http.StatusOK, w.Code, "an invalid token falls back to guest")
	assert.JSONEq(t, `{"userID":"","role":""}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	tokens := auth.NewTokenService("secret", time.Hour)
	r := newTestRouter(tokens)

	customer, _ := tokens.GenerateToken("user-1", auth.RoleCustomer)
	seller, _ := tokens.GenerateToken("user-2", auth.RoleSeller)
	admin, _ := tokens.GenerateToken("user-3", auth.RoleAdmin)

	w := get(r, "/staff", "Bearer "+customer)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Access denied: seller or admin role required")

	assert.Equal(t, http.StatusOK, get(r, "/staff", "Bearer "+seller).Code)
	assert.Equal(t, http.StatusOK, get(r, "/staff", "Bearer "+admin).Code)
}
