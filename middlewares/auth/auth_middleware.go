package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joy095/treasury/logger"
	"github.com/joy095/treasury/utils"
	"github.com/joy095/treasury/utils/jwt_parse"
)

// AdminMiddleware lets a request through only with a valid admin token whose subject is a
// UUID. The subject is the actor recorded on payouts.
func AdminMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := jwt_parse.Authenticate(c, secret)
		if !ok {
			return
		}

		if claims.Role != jwt_parse.AdminRole {
			logger.ErrorLogger.Errorf("Rejected token with role %q for %s: %v", claims.Role, c.FullPath(), utils.ErrForbidden)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "ACCESS_DENIED", "error": "Forbidden: " + utils.ErrForbidden.Error() + "."})
			return
		}

		if _, err := uuid.Parse(claims.Subject); err != nil {
			logger.ErrorLogger.Errorf("Token subject is not a UUID: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "INVALID_TOKEN", "error": "Invalid token subject."})
			return
		}

		c.Next()
	}
}
