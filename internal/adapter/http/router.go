package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kzeybek/push-fanout/internal/adapter/http/middleware"
)

type RouterDeps struct {
	ActionHandler    *ActionHandler
	HealthHandler    *HealthHandler
	MetricsHandler   *MetricsHandler
	WebSocketHandler *WebSocketHandler
	Logger           *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Tracing())
	r.Use(middleware.Logging(deps.Logger))

	r.GET("/health", deps.HealthHandler.Liveness)
	r.GET("/health/ready", deps.HealthHandler.Readiness)

	r.GET("/ws", deps.WebSocketHandler.Handle)
	r.GET("/metrics", deps.MetricsHandler.GetMetrics)

	r.POST("/", middleware.RateLimit(200), deps.ActionHandler.Dispatch)

	return r
}
