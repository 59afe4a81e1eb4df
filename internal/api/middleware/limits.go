package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Payload size limits in bytes.
const (
	// MaxBodySize caps JSON intake bodies. Screenshots arrive base64
	// encoded, so this needs headroom over the raw capture size.
	MaxBodySize = 16 * 1024 * 1024
	// MaxContextBodySize caps context snapshot bodies.
	MaxContextBodySize = 1 * 1024 * 1024
)

// BodyLimit rejects requests whose body exceeds maxBytes. The reader is
// also wrapped so chunked uploads without Content-Length cannot exceed
// the limit either.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
