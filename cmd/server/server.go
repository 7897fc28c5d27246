package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"defendo-server/internal/config"
	"defendo-server/internal/db"
	"defendo-server/internal/handlers"
	"defendo-server/internal/location"
	"defendo-server/internal/notify"
	"defendo-server/internal/services"
	"defendo-server/internal/stream"
	"defendo-server/pkg/logger"
	"defendo-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxRequestBody = 1 << 20 // 1 MiB

// SetupServer initializes and returns a configured HTTP server
func SetupServer(cfg *config.Config) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	if cfg.Server.Port <= 0 {
		return nil, errors.New("invalid server port")
	}

	// Initialize database
	database, err := db.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize repositories
	userRepo := db.NewUserRepository(database.GetDB())
	contactRepo := db.NewContactRepository(database.GetDB())
	alertRepo := db.NewAlertRepository(database.GetDB())
	logRepo := db.NewNotificationLogRepository(database.GetDB())

	// Initialize services and the escalation engine
	userService := services.NewUserService(userRepo)
	contactService := services.NewContactService(contactRepo)
	locations := location.NewStore(cfg.SOS.LocationMaxAge)
	gateway := notify.NewGateway(cfg.Notify.GatewayURL, cfg.Notify.Timeout)

	engine := services.NewEscalationEngine(
		services.EngineTimings{
			EscalationDelay: cfg.SOS.EscalationDelay,
			Countdown:       cfg.SOS.Countdown,
		},
		alertRepo,
		logRepo,
		contactRepo,
		locations,
		gateway,
	)

	// Alert status changes are pushed to connected clients over WebSocket
	hub := stream.NewHub()
	engine.OnStatusChanged(hub.Publish)

	// Initialize router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.AuditLogMiddleware())
	router.Use(middleware.RequestSizeLimitMiddleware(maxRequestBody))

	setupRoutes(router, cfg, engine, hub, alertRepo, logRepo, userService, contactService, locations)

	// Create server with security timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.RegisterOnShutdown(hub.Close)

	return srv, nil
}

// setupRoutes configures all the HTTP routes
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	engine *services.EscalationEngine,
	hub *stream.Hub,
	alertRepo db.AlertRepository,
	logRepo db.NotificationLogRepository,
	userService *services.UserService,
	contactService *services.ContactService,
	locations *location.Store,
) {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg, userService)
	userHandler := handlers.NewUserHandler(userService)
	sosHandler := handlers.NewSOSHandler(engine, alertRepo, logRepo, hub, locations)
	contactHandler := handlers.NewContactHandler(contactService)
	locationHandler := handlers.NewLocationHandler(locations)

	// Basic health check endpoint (public)
	router.GET("/health", handleHealthCheck)

	// Auth endpoints (public)
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// Protected routes group
	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(cfg))

	// SOS endpoints
	sosGroup := protected.Group("/sos")
	{
		sosGroup.POST("/activate", sosHandler.Activate)
		sosGroup.POST("/cancel", sosHandler.Cancel)
		sosGroup.GET("/current", sosHandler.Current)
		sosGroup.GET("/remaining", sosHandler.Remaining)
		sosGroup.GET("/stream", sosHandler.Stream)
	}

	// Alert record endpoints
	alertsGroup := protected.Group("/alerts")
	{
		alertsGroup.GET("", sosHandler.History)
		alertsGroup.GET("/:id/notifications", sosHandler.Notifications)
		alertsGroup.POST("/:id/resolve", sosHandler.Resolve)
	}

	// Location reporting
	protected.POST("/location", locationHandler.Report)

	// Emergency contact endpoints
	contactsGroup := protected.Group("/contacts")
	{
		contactsGroup.POST("", contactHandler.Create)
		contactsGroup.GET("", contactHandler.List)
		contactsGroup.GET("/:id", contactHandler.Get)
		contactsGroup.PUT("/:id", contactHandler.Update)
		contactsGroup.DELETE("/:id", contactHandler.Delete)
	}

	// Profile endpoints
	meGroup := protected.Group("/users/me")
	{
		meGroup.GET("", userHandler.Me)
		meGroup.PUT("", userHandler.UpdateMe)
		meGroup.POST("/password", userHandler.ChangePassword)
		meGroup.POST("/totp/generate", userHandler.GenerateTOTP)
		meGroup.POST("/totp/enable", userHandler.EnableTOTP)
		meGroup.POST("/totp/disable", userHandler.DisableTOTP)
	}
}

// handleHealthCheck handles the health check endpoint
func handleHealthCheck(c *gin.Context) {
	logger.Info("Health check endpoint called")
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().UTC(),
		"version": version,
		"service": "defendo-server",
	})
}

// StartServer starts the HTTP server and handles graceful shutdown
func StartServer(srv *http.Server) error {
	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create a timeout context for shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

// StartServerWithContext starts the HTTP server with a context for shutdown control
func StartServerWithContext(ctx context.Context, srv *http.Server) error {
	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	logger.Info("Shutting down server...")

	// Create a timeout context for shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
