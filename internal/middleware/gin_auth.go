package middleware

import (
	"github.com/gin-gonic/gin"
)

// GinRequireAuthorization is RequireAuthorization for gin routes. The
// aborted chain never reaches the protected handler.
func GinRequireAuthorization(a *AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, failure := a.authorize(c.Request)
		if failure != nil {
			if failure.retryAfter != "" {
				c.Header("Retry-After", failure.retryAfter)
			}
			c.AbortWithStatusJSON(failure.status, gin.H{"error": failure.message})
			return
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
