package server

import (
	"net/http"

	"github.com/Gitisfun/chat-api/internal/auth"
	"github.com/Gitisfun/chat-api/internal/config"
	"github.com/Gitisfun/chat-api/internal/metrics"
	"github.com/Gitisfun/chat-api/internal/mw"
	"github.com/Gitisfun/chat-api/internal/service"
	"github.com/Gitisfun/chat-api/internal/store"
	"github.com/Gitisfun/chat-api/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, gdb *gorm.DB, st store.Store, hub *ws.Hub, gw *ws.Gateway) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandler(
		service.NewUserService(gdb, cfg),
		service.NewRoomService(st, hub),
		service.NewMessageService(st),
	)

	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, gdb))
	authed.POST("/rooms", h.CreateRoom)
	authed.GET("/rooms", h.ListRooms)
	authed.GET("/rooms/unread", h.UnreadSummary)
	authed.GET("/rooms/:id/messages", h.ListMessages)
	authed.DELETE("/rooms/:id", h.DeleteRoom)
	authed.DELETE("/messages/:id", h.DeleteMessage)

	r.GET("/ws", ws.Serve(gw))

	return r
}
