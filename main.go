package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-backend/internal/db"
	"chat-backend/internal/handlers"
	"chat-backend/internal/middleware"
	"chat-backend/internal/notify"
	"chat-backend/internal/observability"
	"chat-backend/internal/rabbitmq"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
	"chat-backend/internal/topics"
	"chat-backend/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "chat-backend")
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

	amqpURL := os.Getenv("AMQP_URL")
	if eventPublisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("EVENTS_EXCHANGE", "chat.events")); err != nil {
		log.Printf("event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(amqpURL, getEnv("AUDIT_EXCHANGE", "audit.events"))
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s reason=%q", rabbitmq.PublisherMode(auditPublisher), rabbitmq.PublisherNoopReason(auditPublisher))
	audit := telemetry.NewAuditEmitter(auditPublisher, getEnv("AUDIT_ROUTING_KEY", "audit.logs"), "chat-backend", getEnv("ENVIRONMENT", "development"))

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	friendRepo := repositories.NewFriendRepo(database)
	userRepo := repositories.NewUserRepo(database)
	sessionRepo := repositories.NewSessionRepo(database)

	registry := topics.NewRegistry()
	dispatcher := notify.NewDispatcher(registry)

	chatHandler := handlers.NewChatHandler(chatRepo, messageRepo, userRepo, friendRepo, dispatcher, audit)
	friendHandler := handlers.NewFriendHandler(friendRepo, chatRepo, messageRepo, userRepo, dispatcher, audit)
	userHandler := handlers.NewUserHandler(userRepo, sessionRepo, chatRepo, friendRepo, dispatcher, audit)
	sessionHandler := ws.NewSessionHandler(registry, dispatcher, sessionRepo, chatRepo, messageRepo, userRepo)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-backend"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(sessionRepo)

	router.POST("/chats", authMiddleware, chatHandler.CreateChat)
	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.GET("/chats/:chat_id", authMiddleware, chatHandler.GetChat)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)
	router.DELETE("/chats/:chat_id", authMiddleware, chatHandler.LeaveChat)
	router.POST("/chats/:chat_id/members", authMiddleware, chatHandler.AddMember)
	router.DELETE("/chats/:chat_id/members/:user_id", authMiddleware, chatHandler.RemoveMember)
	router.PUT("/chats/:chat_id/admins/:user_id", authMiddleware, chatHandler.SetAdmin)
	router.PUT("/chats/:chat_id/owner", authMiddleware, chatHandler.TransferOwner)
	router.POST("/chats/:chat_id/read", authMiddleware, chatHandler.MarkChatRead)
	router.POST("/chats/:chat_id/invitations", authMiddleware, chatHandler.InviteMember)
	router.GET("/chats/:chat_id/invitations", authMiddleware, chatHandler.ListChatInvitations)
	router.POST("/chats/:chat_id/invitations/:invitation_id/approve", authMiddleware, chatHandler.ApproveInvitation)
	router.DELETE("/chats/:chat_id/invitations/:invitation_id", authMiddleware, chatHandler.RejectInvitation)

	router.GET("/friends", authMiddleware, friendHandler.ListFriends)
	router.DELETE("/friends/:user_id", authMiddleware, friendHandler.DeleteFriend)
	router.POST("/friends/invitations", authMiddleware, friendHandler.SendInvitation)
	router.GET("/friends/invitations", authMiddleware, friendHandler.ListInvitations)
	router.POST("/friends/invitations/:invitation_id/accept", authMiddleware, friendHandler.AcceptInvitation)
	router.DELETE("/friends/invitations/:invitation_id", authMiddleware, friendHandler.DeclineInvitation)

	router.GET("/user", authMiddleware, userHandler.GetMe)
	router.PATCH("/user", authMiddleware, userHandler.UpdateProfile)
	router.POST("/user/logout", authMiddleware, userHandler.Logout)
	router.DELETE("/user", authMiddleware, userHandler.DeleteAccount)

	// The websocket endpoint authenticates in-protocol so anonymous clients
	// get a proper error frame instead of an HTTP rejection.
	router.GET("/ws", sessionHandler.Handle)

	handlers.RegisterDebugRoutes(router, audit, os.Getenv("DEBUG_ROUTES") == "true")

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
