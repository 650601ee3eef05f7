package server

import (
	"auction-engine/utils"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs every request against its route template, with
// the auction and bidder ids as separate fields
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	fields := map[string]any{
		"method":  c.Request.Method,
		"route":   route,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	for _, param := range []string{"auction_id", "bidder_id"} {
		if v := c.Param(param); v != "" {
			fields[param] = v
		}
	}

	if c.Writer.Status() >= 500 {
		utils.Warn("HTTP Request", fields)
		return
	}
	utils.Info("HTTP Request", fields)
}
