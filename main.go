package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-server/internal/auth"
	"chat-server/internal/db"
	"chat-server/internal/delivery"
	"chat-server/internal/handlers"
	"chat-server/internal/middleware"
	"chat-server/internal/observability"
	"chat-server/internal/presence"
	"chat-server/internal/rabbitmq"
	"chat-server/internal/repositories"
	"chat-server/internal/telemetry"
	"chat-server/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(os.Getenv("AMQP_URL"), getEnv("AMQP_EXCHANGE", "chat.events"))
	defer publisher.Close()
	observability.SetPublisher(publisher)

	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "chat-server", getEnv("ENVIRONMENT", "dev"))

	tokens := auth.NewTokenService(getEnv("JWT_SECRET", "fallback_secret"), getDurationEnv("JWT_TTL", 30*24*time.Hour))

	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	reconciler := delivery.NewReconciler(messageRepo)
	registry := presence.NewRegistry()

	authHandler := handlers.NewAuthHandler(userRepo, tokens, audit)
	usersHandler := handlers.NewUsersHandler(userRepo)
	messagesHandler := handlers.NewMessagesHandler(messageRepo, userRepo, reconciler)
	wsHandler := ws.NewHandler(registry, userRepo, messageRepo, reconciler)

	reaper := ws.NewReaper(wsHandler,
		getDurationEnv("REAPER_INTERVAL", 5*time.Minute),
		getDurationEnv("IDLE_THRESHOLD", 5*time.Minute))
	go reaper.Run()
	defer reaper.Stop()

	router := gin.Default()
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(tokens)

	api := router.Group("/api")
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)
		api.GET("/auth/renew", authMiddleware, authHandler.Renew)

		api.GET("/users", authMiddleware, usersHandler.ListUsers)
		api.GET("/users/online", authMiddleware, usersHandler.ListOnline)
		api.GET("/users/stats", authMiddleware, usersHandler.Stats)
		api.GET("/users/:id", authMiddleware, usersHandler.GetUser)

		api.GET("/mensajes/entre-usuarios", authMiddleware, messagesHandler.GetConversation)
		api.GET("/mensajes/ultimo", authMiddleware, messagesHandler.GetLast)
		api.GET("/mensajes/no-leidos", authMiddleware, messagesHandler.GetUnread)
		api.GET("/mensajes/buscar", authMiddleware, messagesHandler.Search)
		api.POST("/mensajes", authMiddleware, messagesHandler.Send)
		api.PUT("/mensajes/:mensajeId/leido", authMiddleware, messagesHandler.MarkRead)
		api.PUT("/mensajes/:mensajeId/entregado", authMiddleware, messagesHandler.MarkDelivered)
		api.POST("/mensajes/:mensajeId/reaccion", authMiddleware, messagesHandler.AddReaction)
		api.DELETE("/mensajes/:mensajeId/reaccion", authMiddleware, messagesHandler.RemoveReaction)
		api.DELETE("/mensajes/:mensajeId", authMiddleware, messagesHandler.Delete)
	}

	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": time.Now().UTC()})
	})

	handlers.RegisterDebugRoutes(router, audit, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "3000")
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

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
