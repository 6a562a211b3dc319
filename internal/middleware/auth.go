package middleware

import (
	"net/http"
	"strings"

	"github.com/01moynul/taptosell-orders/internal/auth"
	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey   = "userID"
	UserRoleKey = "userRole"
)

// AuthMiddleware rejects requests without a valid Bearer token and puts the
// actor id and role on the context.
func AuthMiddleware(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. --- Get Authorization Header ---
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, http.StatusUnauthorized, "Invalid token format (must be Bearer)")
			return
		}

		// 2. --- Validate Token ---
		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		// 3. --- Success ---
		c.Set(UserIDKey, claims.Subject)
		c.Set(UserRoleKey, claims.Role)
		c.Next()
	}
}

// OptionalAuth identifies the actor when a valid token is present and lets
// guests through otherwise.
func OptionalAuth(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.Split(c.GetHeader("Authorization"), " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if claims, err := tokens.ValidateToken(parts[1]); err == nil {
				c.Set(UserIDKey, claims.Subject)
				c.Set(UserRoleKey, claims.Role)
			}
		}
		c.Next()
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(UserRoleKey)
		if c.GetString(UserIDKey) == "" {
			abort(c, http.StatusUnauthorized, "User ID not found in context (AuthMiddleware must run first)")
			return
		}
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "Access denied: "+strings.Join(roles, " or ")+" role required")
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}
