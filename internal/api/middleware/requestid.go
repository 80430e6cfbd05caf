package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/scriptbox/scriptbox/internal/shared/id"
)

// requestIDHeader is the inbound and outbound request correlation header.
const requestIDHeader = "X-Request-ID"

// RequestID attaches a correlation ID to every request. An inbound
// X-Request-ID is honored; otherwise a fresh ID is generated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = id.Default().GenerateWithPrefix("req")
		}
		c.Set("request_id", rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}
