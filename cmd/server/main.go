// Package main is the application entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"graceway-go/internal/config"
	"graceway-go/internal/handler"
	"graceway-go/internal/middleware"
	"graceway-go/internal/pipeline"
	"graceway-go/internal/repository"
	"graceway-go/internal/service"
	"graceway-go/pkg/database"
	"graceway-go/pkg/entitlement"
	"graceway-go/pkg/es"
	"graceway-go/pkg/kafka"
	"graceway-go/pkg/llm"
	"graceway-go/pkg/log"
	"graceway-go/pkg/storage"
	"graceway-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. Configuration
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. Logger
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	// 3. Infrastructure
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("elasticsearch init failed: %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. Repositories
	userRepo := repository.NewUserRepository(database.DB)
	assistantRepo := repository.NewAssistantRepository(database.DB)
	convRepo := repository.NewConversationRepository(database.DB)
	prefRepo := repository.NewPreferenceRepository(database.DB)

	// 5. Services (dependency injection)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.NewClient(cfg.LLM)
	assistantsClient := llm.NewAssistantsClient(cfg.LLM)
	entitlementClient := entitlement.NewClient(cfg.Entitlement)

	userService := service.NewUserService(userRepo, jwtManager)
	assistantService := service.NewAssistantService(assistantRepo)
	convService := service.NewConversationService(convRepo)
	prefService := service.NewPreferenceService(prefRepo)
	relayService := service.NewRelayService(assistantRepo, convRepo, userRepo, prefRepo, llmClient, assistantsClient, kafka.ProduceTranscriptEvent, cfg.Relay)
	streamService := service.NewStreamService(assistantRepo, convRepo, userRepo, prefRepo, llmClient, cfg.Relay)
	searchService := service.NewSearchService(cfg.Elasticsearch)
	exportService := service.NewExportService(convService, cfg.MinIO)
	entitlementService := service.NewEntitlementService(entitlementClient, cfg.Entitlement)

	// 6. Transcript indexing pipeline
	indexer := pipeline.NewTranscriptIndexer(cfg.Elasticsearch.IndexName)
	go kafka.StartConsumer(cfg.Kafka, indexer)

	// 7. Router
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.CORS(), middleware.RequestLogger(), gin.Recovery())

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
				authed.POST("/logout", handler.NewUserHandler(userService).Logout)
			}
		}

		relay := apiV1.Group("/relay")
		relay.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			relay.POST("/chat", handler.NewRelayHandler(relayService).Chat)
		}

		assistants := apiV1.Group("/assistants")
		assistants.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			assistants.GET("", handler.NewAssistantHandler(assistantService).List)
		}

		conversations := apiV1.Group("/conversations")
		conversations.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			convHandler := handler.NewConversationHandler(convService)
			conversations.GET("", convHandler.List)
			conversations.GET("/recent", convHandler.MostRecent)
			conversations.GET("/search", handler.NewSearchHandler(searchService).Search)
			conversations.GET("/:id/messages", convHandler.Messages)
			conversations.POST("/:id/export", handler.NewExportHandler(exportService).Export)
		}

		preferences := apiV1.Group("/preferences")
		preferences.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			prefHandler := handler.NewPreferenceHandler(prefService)
			preferences.GET("", prefHandler.Get)
			preferences.PUT("", prefHandler.Update)
		}

		entitlements := apiV1.Group("/entitlements")
		entitlements.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			entitlements.GET("/:id", handler.NewEntitlementHandler(entitlementService).Check)
		}
	}

	// WebSocket chat, token carried in the path.
	r.GET("/chat/:token", handler.NewChatStreamHandler(streamService, userService, jwtManager).Handle)

	// 8. HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Info("server exited")
}
