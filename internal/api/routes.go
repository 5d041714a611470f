package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/analytics-gin/internal/config"
	"github.com/mautops/analytics-gin/internal/service"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, redisClient *redis.Client, querySvc service.QueryService, jobSvc service.JobService, cfg *config.Config) *gin.Engine {
	if config.IsProduction(cfg) {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// 中间件
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())

	// 健康检查
	healthController := NewHealthController(db, redisClient)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler)

	// 分析查询控制器
	analyticsController := NewAnalyticsController(querySvc, jobSvc)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		analytics := v1.Group("/analytics")
		{
			analytics.GET("/events", analyticsController.QueryEvents)
			analytics.GET("/aggregate/type", analyticsController.AggregateByType)
			analytics.GET("/aggregate/hour", analyticsController.AggregateByHour)

			// 异步任务路由
			analytics.POST("/jobs", analyticsController.SubmitJob)
			analytics.GET("/jobs/:id", analyticsController.GetJobStatus)
		}
	}

	// 自定义 NoRoute 处理器,返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}
