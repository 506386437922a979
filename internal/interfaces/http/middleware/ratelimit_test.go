package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/freightops/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
	assert.False(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.False(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_WindowResetsBudget(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_Remaining(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)

	assert.Equal(t, 5, rl.Remaining("10.0.0.1"))
	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.1")
	assert.Equal(t, 3, rl.Remaining("10.0.0.1"))
}

func TestRateLimiter_ConcurrentTakesStayWithinBudget(t *testing.T) {
	const budget = 50
	rl := NewRateLimiter(budget, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("10.0.0.1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, budget, allowed)
}

func newRateLimitedRouter(limiter *RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(RateLimit(limiter))
	router.GET("/invoices", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestRateLimit_SetsHeaders(t *testing.T) {
	router := newRateLimitedRouter(NewRateLimiter(10, time.Minute))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invoices", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_RejectsOverBudget(t *testing.T) {
	router := newRateLimitedRouter(NewRateLimiter(2, time.Minute))

	var w *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invoices", nil))
	}

	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeRateLimited, resp.Error.Code)
}

func TestRateLimitByKey_UsesCustomKey(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)

	router := gin.New()
	router.Use(RateLimitByKey(limiter, func(c *gin.Context) string {
		return c.GetHeader("X-Client-Root")
	}))
	router.GET("/invoices", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(clientRoot string) int {
		req := httptest.NewRequest(http.MethodGet, "/invoices", nil)
		req.Header.Set("X-Client-Root", clientRoot)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("ACME"))
	assert.Equal(t, http.StatusTooManyRequests, send("ACME"))
	assert.Equal(t, http.StatusOK, send("GLOBEX"))
}
