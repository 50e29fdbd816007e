package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"

	"github.com/mbeoliero/coachim/internal/config"
	"github.com/mbeoliero/coachim/internal/gateway"
	"github.com/mbeoliero/coachim/internal/handler"
	"github.com/mbeoliero/coachim/internal/middleware"
)

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, handlers *Handlers, auth middleware.Authenticator, wsServer *gateway.WsServer) {
	cfg := config.GlobalConfig
	jwtAuth := middleware.JWTAuth(auth)

	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Health check
	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth routes (no auth required)
	authGroup := h.Group("/auth")
	{
		authGroup.POST("/register", handlers.Auth.Register)
		authGroup.POST("/login", handlers.Auth.Login)
		authGroup.POST("/logout", jwtAuth, handlers.Auth.Logout)
	}

	// User routes (auth required)
	userGroup := h.Group("/user", jwtAuth)
	{
		userGroup.GET("/info", handlers.User.GetUserInfo)
		userGroup.GET("/info/:user_id", handlers.User.GetUserInfoById)
	}

	// Message routes (auth required)
	msgGroup := h.Group("/msg", jwtAuth)
	{
		msgGroup.POST("/send", handlers.Message.SendMessage)
		msgGroup.GET("/pull", handlers.Message.PullMessages)
		msgGroup.GET("/history", handlers.Message.GetHistory)
		msgGroup.GET("/max_seq", handlers.Message.GetMaxSeq)
	}

	// Conversation routes (auth required)
	convGroup := h.Group("/conversation", jwtAuth)
	{
		convGroup.GET("/list", handlers.Conversation.GetConversationList)
		convGroup.GET("/info", handlers.Conversation.GetConversation)
		convGroup.POST("/start", handlers.Conversation.StartConversation)
		convGroup.PUT("/update", handlers.Conversation.UpdateConversation)
		convGroup.POST("/mark_read", handlers.Conversation.MarkRead)
		convGroup.GET("/max_read_seq", handlers.Conversation.GetMaxReadSeq)
		convGroup.GET("/unread_count", handlers.Conversation.GetUnreadCount)
	}

	// WebSocket route using hertz-contrib/websocket with proper origin validation
	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return middleware.OriginAllowed(string(ctx.Request.Header.Peek("Origin")), allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}

// Handlers holds all HTTP handlers
type Handlers struct {
	Auth         *handler.AuthHandler
	User         *handler.UserHandler
	Message      *handler.MessageHandler
	Conversation *handler.ConversationHandler
}
