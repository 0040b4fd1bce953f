package middlewares

import (
	"net/http"

	"github.com/geocoder89/expenseflow/internal/authz"
	"github.com/gin-gonic/gin"
)

// RequireAction lets the request through only when the signed-in user's role
// permits action.
func (m *AuthMiddleware) RequireAction(action authz.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := UserFromContext(c)

		if !ok || u.Role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "unauthorized",
					"message": "Sign in to continue",
				},
			})
			return
		}
		if !authz.Allowed(u.Role, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "forbidden",
					"message": "Your role does not permit this action",
				},
			})
			return
		}
		c.Next()
	}
}
