package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// PrivateCache lets the learner's browser reuse a response for maxAge.
func PrivateCache(maxAge time.Duration) gin.HandlerFunc {
	value := fmt.Sprintf("private, max-age=%d", int(maxAge.Seconds()))
	return func(c *gin.Context) {
		c.Header("Cache-Control", value)
		c.Next()
	}
}

// NoStore forbids caching of the response.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
