// internal/middleware/recovery_middleware.go
package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bnc-service/internal/utils"
)

// RecoveryMiddleware turns a handler panic into a 500 APIResponse. The plugin
// kind of the route, if any, is logged so a failing plugin can be identified.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID := utils.GetRequestID(c)
		fields := []zap.Field{
			zap.String("panic", fmt.Sprint(recovered)),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Stack("stacktrace"),
		}
		if kind := c.Param("kind"); kind != "" {
			fields = append(fields, zap.String("kind", kind))
		}
		utils.LoggerWithRequestID(logger, requestID).Error("Panic recovered", fields...)

		utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", nil)
	})
}
