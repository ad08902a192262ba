package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"cypher-server/internal/auth"
	"cypher-server/internal/chat"
	"cypher-server/internal/gateway"
	"cypher-server/internal/handler"
	"cypher-server/internal/hub"
	"cypher-server/internal/middleware"
	"cypher-server/internal/quota"
	"cypher-server/internal/store"
)

type Deps struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
	Generator   gateway.Generator
	Quota       *quota.Tracker
	Sender      auth.CodeSender
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	sender := deps.Sender
	if sender == nil {
		sender = auth.LogSender{}
	}

	wsHub := hub.New()
	flows := auth.NewFlows(deps.Store, sender)

	identifyLimiter := middleware.NewRateLimiter(10, time.Minute)
	attemptLimiter := middleware.NewRateLimiter(5, time.Minute)
	authHandler := &handler.AuthHandler{Flows: flows, TokenConfig: deps.TokenConfig, AttemptLimiter: attemptLimiter}

	authGroup := r.Group("/v1/auth")
	authGroup.POST("/identify", middleware.RateLimitMiddleware(identifyLimiter), authHandler.Identify)
	authGroup.POST("/code", authHandler.Code)
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/password", authHandler.Password)
	authGroup.POST("/reset", authHandler.Reset)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))

	sessionHandler := &handler.SessionHandler{Store: deps.Store}
	protected.GET("/sessions", sessionHandler.List)
	protected.POST("/sessions", sessionHandler.Create)
	protected.GET("/sessions/:id", sessionHandler.Get)

	chatService := chat.NewService(deps.Store, deps.Generator, deps.Quota, wsHub)
	chatHandler := &handler.ChatHandler{Service: chatService}
	protected.POST("/chat/send", chatHandler.Send)

	accountHandler := &handler.AccountHandler{Store: deps.Store, Quota: deps.Quota, Hub: wsHub}
	protected.GET("/account", accountHandler.Get)
	protected.PUT("/account", accountHandler.Update)

	versionHandler := &handler.VersionHandler{}
	r.GET("/v1/version", versionHandler.Check)

	wsHandler := &handler.WebSocketHandler{Hub: wsHub, TokenConfig: deps.TokenConfig}
	r.GET("/ws", wsHandler.Serve)

	return r
}
