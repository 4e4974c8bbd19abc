package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/simutrador/marketdata/internal/api/handlers"
	"github.com/simutrador/marketdata/internal/database"
)

type HealthResponse struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Version   string      `json:"version"`
	Services  Services    `json:"services"`
	System    SystemStats `json:"system"`
}

type Services struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
}

func SetupRoutes(router *gin.Engine, db *database.PostgresDB, redis *database.RedisClient, update *handlers.UpdateHandler, analysis *handlers.AnalysisHandler) {
	// Health check endpoint
	router.GET("/health", healthCheck(db, redis))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Update orchestration routes
		updates := v1.Group("/update")
		{
			updates.POST("/start", update.StartUpdate)
			updates.GET("/status/:id", update.GetStatus)
			updates.GET("/status/:id/progress", update.GetProgress)
			updates.GET("/active", update.ListActive)
			updates.DELETE("/:id", update.CancelUpdate)
		}

		// Data analysis routes
		dataAnalysis := v1.Group("/data-analysis")
		{
			dataAnalysis.POST("/completeness", analysis.AnalyzeCompleteness)
		}
	}
}

func healthCheck(db *database.PostgresDB, redis *database.RedisClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Version:   "1.0.0",
			Services: Services{
				Database: "ok",
				Redis:    "ok",
			},
		}

		// Check database health
		if db == nil {
			response.Services.Database = "not configured"
		} else if err := db.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Database = "error"
			response.Status = "degraded"
		}

		// Check Redis health
		if redis == nil {
			response.Services.Redis = "not configured"
		} else if err := redis.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Redis = "error"
			response.Status = "degraded"
		}

		// Best-effort system stats
		if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
			response.System.CPUPercent = percentages[0]
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			response.System.MemoryPercent = vm.UsedPercent
			response.System.MemoryUsedMB = vm.Used / 1024 / 1024
		}

		statusCode := http.StatusOK
		if response.Status == "degraded" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, response)
	}
}
