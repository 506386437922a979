package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/freightops/backend/internal/infrastructure/persistence"
	"github.com/freightops/backend/internal/interfaces/http/dto"
)

// PoolMonitor reports connection pool statistics. *persistence.Database
// satisfies it; tests stub it.
type PoolMonitor interface {
	Stats() (persistence.ConnectionStats, error)
}

// SystemHandler serves the operational endpoints under /system.
type SystemHandler struct {
	BaseHandler
	startTime time.Time
	pool      PoolMonitor
}

// NewSystemHandler creates a SystemHandler. pool may be nil, in which case
// system info omits database pool figures.
func NewSystemHandler(pool PoolMonitor) *SystemHandler {
	return &SystemHandler{
		startTime: time.Now(),
		pool:      pool,
	}
}

// DBPoolInfo is the connection pool section of the system info response.
type DBPoolInfo struct {
	MaxOpenConnections int   `json:"max_open_connections" example:"25"`
	OpenConnections    int   `json:"open_connections" example:"10"`
	InUse              int   `json:"in_use" example:"3"`
	Idle               int   `json:"idle" example:"7"`
	WaitCount          int64 `json:"wait_count" example:"0"`
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string      `json:"name" example:"FreightOps Reconciliation API"`
	Version   string      `json:"version" example:"1.0.0"`
	GoVersion string      `json:"go_version" example:"go1.25.5"`
	Uptime    string      `json:"uptime" example:"1h30m45s"`
	DBPool    *DBPoolInfo `json:"db_pool,omitempty"`
}

// GetSystemInfo returns build, uptime and connection pool information.
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      "FreightOps Reconciliation API",
		Version:   "1.0.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	if h.pool != nil {
		if stats, err := h.pool.Stats(); err == nil {
			info.DBPool = &DBPoolInfo{
				MaxOpenConnections: stats.MaxOpenConnections,
				OpenConnections:    stats.OpenConnections,
				InUse:              stats.InUse,
				Idle:               stats.Idle,
				WaitCount:          stats.WaitCount,
			}
		}
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(info))
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message" example:"pong"`
	Timestamp string `json:"timestamp" example:"2026-01-23T12:00:00Z"`
}

// Ping reports that the API is responsive.
func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	}))
}
