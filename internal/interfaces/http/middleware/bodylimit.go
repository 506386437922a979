package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/freightops/backend/internal/interfaces/http/dto"
)

// BodyLimit rejects requests whose body exceeds maxBytes. Requests that
// declare a Content-Length over the limit are refused outright; streaming
// bodies are capped with a MaxBytesReader so oversized chunked uploads fail
// at read time instead of buffering the whole payload.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponseWithRequestID(
					dto.ErrCodeRequestTooLarge,
					"Request body exceeds maximum allowed size",
					c.GetString("request_id"),
				))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
