package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/PhmVu/EBN-Besu/internal/middleware"
	"github.com/PhmVu/EBN-Besu/internal/models"
)

// claimsFromContext returns the JWT claims the auth middleware stored,
// or nil when the request is unauthenticated.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	v, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*models.JWTClaims)
	return claims
}
