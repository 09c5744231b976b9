package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cloudblog-api/internal/middleware"
	"github.com/noah-isme/cloudblog-api/pkg/jwtutil"
	"github.com/noah-isme/cloudblog-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *jwtutil.Claims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*jwtutil.Claims)
	if !ok {
		return nil
	}
	return claims
}

// respond writes data with whatever response metadata the request collected.
func respond(c *gin.Context, status int, data interface{}) {
	response.JSON(c, status, data, nil, middleware.ExtractMeta(c))
}
