package middleware

import (
	"net/http"
	"strings"

	"bidmarket/models"
	"bidmarket/utils"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "userID"
	ctxRole   = "role"
)

// JWTAuthMiddleware validates the bearer token and stores the caller's id and role
// in the gin context.
func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Message: "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		claims, err := utils.ExtractClaims(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Message: "Invalid token"})
			return
		}
		role := models.Role(claims.Role)
		switch role {
		case models.RoleCustomer, models.RoleProvider, models.RoleAdmin:
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Message: "Unknown role in token"})
			return
		}

		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxRole, role)
		c.Next()
	}
}

// ActorFrom returns the authenticated caller set by JWTAuthMiddleware.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	id := c.GetString(ctxUserID)
	role, _ := c.Get(ctxRole)
	r, ok := role.(models.Role)
	if id == "" || !ok {
		return models.Actor{}, false
	}
	return models.Actor{ID: id, Role: r}, true
}
