package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/coachim/internal/config"
	"github.com/mbeoliero/coachim/internal/gateway"
	"github.com/mbeoliero/coachim/internal/handler"
	"github.com/mbeoliero/coachim/internal/repository"
	"github.com/mbeoliero/coachim/internal/router"
	"github.com/mbeoliero/coachim/internal/service"
	"github.com/mbeoliero/coachim/pkg/constant"
	"github.com/mbeoliero/coachim/pkg/idgen"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := "config/config.yaml"
	if p := os.Getenv("COACHIM_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s", cfg.Server.Mode)

	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		log.CtxError(ctx, "failed to initialize repositories: %v", err)
		panic(err)
	}
	defer repos.Close()

	if err := repos.CheckConnection(ctx); err != nil {
		log.CtxError(ctx, "database connection check failed: %v", err)
		panic(err)
	}
	if err := repos.Migrate(ctx); err != nil {
		log.CtxError(ctx, "database migration failed: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "database connection established")

	idGen, err := idgen.NewSonyflakeGenerator(cfg.WebSocket.MachineId)
	if err != nil {
		log.CtxError(ctx, "failed to create id generator: %v", err)
		panic(err)
	}
	idgen.SetDefaultGenerator(idGen)

	authService := service.NewAuthService(repos.User, cfg, repos.Redis)
	userService := service.NewUserService(repos.User)
	msgService := service.NewMessageService(repos, idGen)
	convService := service.NewConversationService(repos)

	wsServer := gateway.NewWsServer(cfg, repos.Redis, msgService, convService, authService)

	// Persisted messages are pushed through the gateway, and new logins kick stale connections
	msgService.SetPusher(wsServer)
	authService.SetKicker(wsServer)

	wsServer.Run(ctx)
	log.CtxInfo(ctx, "websocket server started")

	handlers := &router.Handlers{
		Auth:         handler.NewAuthHandler(authService),
		User:         handler.NewUserHandler(userService),
		Message:      handler.NewMessageHandler(msgService),
		Conversation: handler.NewConversationHandler(convService),
	}

	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
		server.WithExitWaitTime(5*time.Second),
	)

	router.SetupRouter(h, handlers, authService, wsServer)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	go func() {
		h.Spin()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.CtxError(shutdownCtx, "server shutdown error: %v", err)
	}

	log.CtxInfo(shutdownCtx, "server stopped")
}
