package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// Logging returns a request logging middleware. Streaming endpoints are hot
// paths, so the format stays short: time, method, path, status, latency.
func Logging() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(params gin.LogFormatterParams) string {
		return fmt.Sprintf("%s %s %s %d %s\n",
			params.TimeStamp.Format("2006/01/02 15:04:05"),
			params.Method,
			params.Path,
			params.StatusCode,
			params.Latency,
		)
	})
}
