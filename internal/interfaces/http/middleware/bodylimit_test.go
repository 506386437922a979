package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightops/backend/internal/interfaces/http/dto"
)

func serveBodyLimited(maxBytes int64, body string, contentLength int64) *httptest.ResponseRecorder {
	router := gin.New()
	router.Use(BodyLimit(maxBytes))
	router.POST("/invoices/import", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusBadRequest, "short read")
			return
		}
		c.String(http.StatusOK, "imported")
	})

	req := httptest.NewRequest(http.MethodPost, "/invoices/import", strings.NewReader(body))
	req.ContentLength = contentLength
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	w := serveBodyLimited(1024, `{"invoice_number":"NF-001"}`, 27)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "imported", w.Body.String())
}

func TestBodyLimit_RejectsDeclaredOversize(t *testing.T) {
	payload := strings.Repeat("x", 200)
	w := serveBodyLimited(100, payload, 200)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeRequestTooLarge, resp.Error.Code)
}

func TestBodyLimit_CapsStreamingBody(t *testing.T) {
	// ContentLength -1 mimics a chunked upload, which skips the upfront
	// check and must be stopped by the MaxBytesReader instead.
	payload := strings.Repeat("x", 100)
	w := serveBodyLimited(50, payload, -1)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "short read", w.Body.String())
}

func TestBodyLimit_IgnoresBodylessRequests(t *testing.T) {
	router := gin.New()
	router.Use(BodyLimit(10))
	router.GET("/invoices", func(c *gin.Context) {
		c.String(http.StatusOK, "listed")
	})

	req := httptest.NewRequest(http.MethodGet, "/invoices", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
