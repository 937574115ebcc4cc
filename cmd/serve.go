package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/fdms/services/admin/internal/core"
	"example.com/fdms/services/admin/internal/infrastructure"
	adminhttp "example.com/fdms/services/admin/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the fiscal administration API server",
	Long:  `Launches the HTTP server handling taxpayer onboarding, device provisioning, lifecycle management and cross-tenant reporting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer() error {
	logger.Info("Initializing Fiscal Administration Service...")

	// --- Infrastructure Setup ---
	logger.Info("Connecting to database...")
	db, err := infrastructure.NewDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	logger.Info("Connecting to cache...")
	cache, err := infrastructure.NewCache(cfg.Redis)
	if err != nil {
		logger.Warn("Cache unavailable, sessions will be validated against the database")
		cache = nil
	} else {
		defer cache.Close()
	}

	logger.Info("Connecting to messaging service...")
	messaging, err := infrastructure.NewMessaging(cfg.ServiceBus)
	if err != nil {
		logger.Warn("Messaging service unavailable, audit export disabled")
		messaging = nil
	} else {
		defer messaging.Close()
	}

	// --- Service Layer Setup ---
	dataStore := core.NewDataStore(db.DB)

	services, err := core.NewServiceRegistry(core.ServiceConfig{
		Store:     dataStore,
		Cache:     cache,
		Messaging: messaging,
		Logger:    logger,
		Auth:      cfg.Auth,
		Gateway:   cfg.Gateway,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	// --- Ingest Bridge ---
	var subscriber *infrastructure.MQTTSubscriber
	if cfg.MQTT != nil && cfg.MQTT.BrokerURL != "" {
		subscriber, err = infrastructure.NewMQTTSubscriber(*cfg.MQTT, services.Ingest.HandleMessage, logger)
		if err != nil {
			return fmt.Errorf("failed to create ingest bridge: %w", err)
		}
		if err := subscriber.Start(); err != nil {
			return fmt.Errorf("failed to start ingest bridge: %w", err)
		}
	} else {
		logger.Info("MQTT not configured, ingest bridge disabled")
	}

	// --- API Layer Setup ---
	router := gin.New()
	router.Use(gin.Recovery())

	handlers := adminhttp.NewHandlers(services)
	adminhttp.SetupRoutes(router, handlers, services.Auth, logger)

	// --- HTTP Server ---
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful Shutdown ---
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Infof("Fiscal Administration API listening on %s", serverAddr)
		logger.Info("Service started successfully")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-shutdownChan

	logger.Warn("Shutdown signal received, initiating graceful shutdown...")

	// Stop accepting ingest messages before draining HTTP
	if subscriber != nil {
		subscriber.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	} else {
		logger.Info("Server stopped gracefully")
	}

	logger.Info("Fiscal Administration Service shutdown complete")
	return nil
}
