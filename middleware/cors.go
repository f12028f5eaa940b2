package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows the configured frontend origins. ALLOWED_ORIGINS is a
// comma separated list; "*" allows everything (dev only).
func CORSMiddleware() gin.HandlerFunc {
	allowed := strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		match := ""
		for _, candidate := range allowed {
			candidate = strings.TrimSpace(candidate)
			if candidate == "*" || candidate == origin {
				match = candidate
				break
			}
		}

		if match != "" {
			c.Header("Access-Control-Allow-Origin", match)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if match != "*" {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
