package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"elimu_backend/internal/appErrors"
	"elimu_backend/internal/auth"
	"elimu_backend/internal/logger"
	"elimu_backend/internal/models"
)

// JWTAuthMiddleware validates the bearer token and stores claims in the context.
func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			appErrors.AbortUnauthorized(c, "Authorization header missing or invalid")
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := auth.ParseToken(tokenStr)
		if err != nil {
			appErrors.Abort(c, appErrors.ErrInvalidToken)
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("role", claims.Role)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// RequireRoles restricts a route to the given roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]bool)
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(c *gin.Context) {
		roleVal, exists := c.Get("role")
		if !exists {
			appErrors.Abort(c, appErrors.ErrForbidden)
			return
		}

		role, ok := roleVal.(models.UserRole)
		if !ok {
			roleStr, isString := roleVal.(string)
			if !isString {
				appErrors.Abort(c, appErrors.ErrForbidden)
				return
			}
			role = models.UserRole(roleStr)
		}

		if !roleSet[role] {
			appErrors.Abort(c, appErrors.ErrForbidden)
			return
		}

		c.Next()
	}
}
