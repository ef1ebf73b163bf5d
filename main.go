package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"marketplace-messaging/internal/auth"
	"marketplace-messaging/internal/db"
	"marketplace-messaging/internal/handlers"
	"marketplace-messaging/internal/middleware"
	"marketplace-messaging/internal/observability"
	"marketplace-messaging/internal/rabbitmq"
	"marketplace-messaging/internal/repositories"
	"marketplace-messaging/internal/telemetry"
	"marketplace-messaging/internal/ws"
)

func main() {
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "marketplace-messaging", getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""))
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	amqpURL := getEnv("AMQP_URL", "")
	exchange := getEnv("AMQP_EXCHANGE", "marketplace.events")

	if eventPublisher, err := observability.NewAMQPPublisher(amqpURL, exchange); err != nil {
		log.Printf("event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(amqpURL, exchange)
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s reason=%q", rabbitmq.PublisherMode(auditPublisher), rabbitmq.PublisherNoopReason(auditPublisher))
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, "audit.messaging", "marketplace-messaging", getEnv("ENVIRONMENT", "dev"))

	accountClient := auth.NewClient(getEnv("AUTH_HTTP_ADDR", "http://localhost:8084"))

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()

	conversationHandler := handlers.NewConversationHandler(conversationRepo, messageRepo, accountClient, hub, auditEmitter)
	messagesWS := ws.NewMessageWebSocketHandler(hub, conversationRepo, messageRepo, accountClient)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("marketplace-messaging"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(accountClient)

	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.POST("/conversations/start", authMiddleware, conversationHandler.StartConversation)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, conversationHandler.GetMessages)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, conversationHandler.PostMessage)
	router.POST("/conversations/:conversation_id/read", authMiddleware, conversationHandler.MarkRead)

	router.GET("/ws", messagesWS.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, auditEmitter, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
