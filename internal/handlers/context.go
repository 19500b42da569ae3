package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
)

func requestContext(c *gin.Context) context.Context {
	return c.Request.Context()
}
