package server

import (
	"time"

	"chat-engine/internal/chat"
	"chat-engine/internal/notify"
	"chat-engine/internal/platform/config"
	"chat-engine/internal/platform/health"
	"chat-engine/internal/platform/middleware"
	"chat-engine/internal/presence"
	"chat-engine/internal/realtime"

	"github.com/gin-gonic/gin"
)

// API HTTP 層
// 持有各業務服務，所有 handler 掛在這個結構上.
type API struct {
	chat      *chat.Service
	presence  *presence.Tracker
	notify    *notify.Dispatcher
	hub       *realtime.Hub
	auth      *middleware.JWTMiddleware
	wsLimiter *middleware.WSConnectionLimiter
}

// NewAPI 創建 HTTP 層
func NewAPI(chatSvc *chat.Service, tracker *presence.Tracker, dispatcher *notify.Dispatcher, hub *realtime.Hub, auth *middleware.JWTMiddleware, wsLimiter *middleware.WSConnectionLimiter) *API {
	return &API{
		chat:      chatSvc,
		presence:  tracker,
		notify:    dispatcher,
		hub:       hub,
		auth:      auth,
		wsLimiter: wsLimiter,
	}
}

// securityHeadersMiddleware 添加安全標頭
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 防止點擊劫持
		c.Header("X-Frame-Options", "DENY")

		// 防止 MIME 類型嗅探
		c.Header("X-Content-Type-Options", "nosniff")

		// 啟用 XSS 保護
		c.Header("X-XSS-Protection", "1; mode=block")

		// 內容安全策略
		c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; font-src 'self'; connect-src 'self'; frame-ancestors 'none';")

		// 推薦政策
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// 權限政策
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		c.Next()
	}
}

// corsMiddleware 來源白名單 CORS
func corsMiddleware() gin.HandlerFunc {
	// 生產環境應該從配置文件讀取
	allowedOrigins := map[string]bool{
		"http://localhost:3000":  true, // 開發環境前端
		"http://localhost:8080":  true, // 本地測試
		"http://127.0.0.1:5500":  true, // Live Server
		"http://127.0.0.1:8080":  true, // 本地測試 (127.0.0.1)
		"http://localhost:5500":  true, // Live Server (localhost)
		"https://yourdomain.com": true, // 生產環境（請修改為實際域名）
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if allowedOrigins[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-User-ID")
		c.Header("Access-Control-Max-Age", "86400") // 預檢請求緩存 24 小時

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// Router 設定路由
func (a *API) Router() *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware())

	// 請求 ID 中間件（最優先）
	r.Use(middleware.RequestIDMiddleware())

	// 安全標頭
	r.Use(securityHeadersMiddleware())

	// 請求元數據（IP、User-Agent）
	r.Use(middleware.RequestMetadataMiddleware())

	cfg := config.Get()

	// 請求大小限制（防止大文件攻擊）
	maxMemory := int64(10 << 20) // 默認 10MB
	if cfg != nil && cfg.Limits.Request.MaxMultipartMemory > 0 {
		maxMemory = cfg.Limits.Request.MaxMultipartMemory
	}
	r.MaxMultipartMemory = maxMemory

	// Rate Limiter
	defaultLimit := 100
	if cfg != nil && cfg.Limits.RateLimiting.DefaultPerMinute > 0 {
		defaultLimit = cfg.Limits.RateLimiting.DefaultPerMinute
	}
	rateLimiter := middleware.NewPerEndpointRateLimiter(defaultLimit, time.Minute)

	// 為不同端點設置不同的速率限制
	if cfg != nil && cfg.Limits.RateLimiting.Enabled {
		if cfg.Limits.RateLimiting.MessagesPerMin > 0 {
			rateLimiter.SetLimit("/api/v1/channels/:channel_id/messages", cfg.Limits.RateLimiting.MessagesPerMin, time.Minute)
		}
		if cfg.Limits.RateLimiting.ChannelsPerMin > 0 {
			rateLimiter.SetLimit("/api/v1/channels", cfg.Limits.RateLimiting.ChannelsPerMin, time.Minute)
		}
	}
	r.Use(rateLimiter.Middleware())

	// health check 不走認證
	healthHandler := health.NewHealthHandler(a.hub.Registry().ConnectionCount)
	r.GET("/health", healthHandler.HealthCheck)

	api := r.Group("/api/v1")
	api.Use(a.auth.GinMiddleware())
	{
		api.POST("/channels", a.createChannel)
		api.GET("/channels", a.listChannels)
		api.POST("/direct-channels", a.createDirectChannel)
		api.GET("/channels/:channel_id", a.getChannel)
		api.DELETE("/channels/:channel_id", a.deleteChannel)
		api.POST("/channels/:channel_id/read", a.markRead)
		api.GET("/channels/:channel_id/members", a.listMembers)
		api.POST("/channels/:channel_id/members", a.addMember)
		api.PUT("/channels/:channel_id/members/:user_id/role", a.updateMemberRole)
		api.DELETE("/channels/:channel_id/members/:user_id", a.removeMember)
		api.GET("/channels/:channel_id/messages", a.listMessages)
		api.POST("/channels/:channel_id/messages", a.sendMessage)
		api.PUT("/messages/:message_id", a.editMessage)
		api.DELETE("/messages/:message_id", a.deleteMessage)

		api.POST("/files/upload", a.uploadFiles)
		api.GET("/files/:attachment_id/download", a.downloadFile)

		api.GET("/notifications", a.listNotifications)
		api.GET("/notifications/unread-count", a.unreadNotificationCount)
		api.POST("/notifications/:notification_id/read", a.markNotificationRead)
		api.PUT("/notifications/read-all", a.markAllNotificationsRead)
		api.DELETE("/notifications/:notification_id", a.deleteNotification)
		api.DELETE("/notifications", a.clearNotifications)

		api.GET("/status", a.getOwnStatus)
		api.PUT("/status", a.updateStatus)
		api.GET("/status/:user_id", a.getUserStatus)

		// WebSocket endpoint - 應用額外的連接限制
		api.GET("/ws", a.wsLimiter.Middleware(), a.hub.HandleWS)
	}

	return r
}
