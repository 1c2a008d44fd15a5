// README: Recovery middleware; turns handler panics into 500s.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic in handler", zap.Any("panic", rec), zap.String("route", routeOf(c)), zap.Stack("stack"))
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: "please try again"})
			}
		}()
		c.Next()
	}
}
