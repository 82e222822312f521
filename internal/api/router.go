package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jengzang/records-tracks-go/internal/config"
	"github.com/jengzang/records-tracks-go/internal/handler"
	"github.com/jengzang/records-tracks-go/internal/middleware"
)

// Handlers groups the HTTP handlers mounted under /api/v1.
type Handlers struct {
	Jobs      *handler.JobHandler
	Tracks    *handler.TrackHandler
	Visits    *handler.VisitHandler
	Settings  *handler.SettingsHandler
	Geofences *handler.GeofenceHandler

	// Ping checks storage for /health; nil reports healthy.
	Ping func(ctx context.Context) error
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger())

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+middleware.UserHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		if h.Ping != nil {
			if err := h.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Records Tracks API is running",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API 路由组
	api := r.Group("/api/v1", middleware.Auth(cfg.Security))
	{
		// 重算任务
		jobs := api.Group("/jobs")
		{
			jobs.POST("", middleware.RateLimit(cfg.Security.JobRateLimit, cfg.Security.JobRateWindow), h.Jobs.CreateJob)
			jobs.GET("", h.Jobs.ListJobs)
			jobs.GET("/:id", h.Jobs.GetJob)
		}

		// 轨迹
		tracks := api.Group("/tracks")
		{
			tracks.GET("", h.Tracks.ListTracks)
			tracks.GET("/:id", h.Tracks.GetTrack)
		}

		// 停留
		api.GET("/visits", h.Visits.ListVisits)

		// 区域与地点
		geofences := api.Group("/geofences")
		{
			geofences.GET("", h.Geofences.ListGeofences)
			geofences.POST("", h.Geofences.CreateGeofence)
		}

		// 用户阈值设置
		api.GET("/settings", h.Settings.GetSettings)
		api.PUT("/settings", h.Settings.UpdateSettings)
	}

	return r
}
