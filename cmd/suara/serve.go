package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/internal/api"
	"github.com/satriahrh/suara/internal/auth"
	"github.com/satriahrh/suara/internal/metrics"
	"github.com/satriahrh/suara/internal/websocket"
	"github.com/satriahrh/suara/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the voice session server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	validator, err := auth.NewValidator(cfg.JWTSecret)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	knowledge, err := buildKnowledge(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	engine, err := buildSynthesis(cfg, m, logger)
	if err != nil {
		return err
	}
	agents, closers, err := buildAgents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	speechToText, sttClosers, err := buildSpeechToText(ctx, logger)
	if err != nil {
		return err
	}
	closers = append(closers, sttClosers...)

	// Initialize usecase services
	chatService := usecase.NewChatService(knowledge, logger)
	conversationService := usecase.NewConversationService(speechToText, chatService, logger,
		usecase.WithLanguage(cfg.STTLanguage))

	// Initialize WebSocket hub with conversation service
	hub := websocket.NewHub(agents, engine, conversationService, logger, websocket.WithHubMetrics(m))
	go hub.Run(ctx)

	reaper := websocket.NewBootstrapReaper(hub, cfg.BootstrapTimeout, logger)
	reaper.Start()
	defer reaper.Stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, api.Dependencies{
		Hub:       hub,
		Auth:      validator,
		Knowledge: knowledge,
		Gatherer:  registry,
		Logger:    logger,
	})

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.Bool("synthesis", engine != nil),
		zap.Bool("reranking", knowledge.Reranking()))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := closeAll(shutdownCtx, closers); err != nil {
		logger.Error("Failed to release resources", zap.Error(err))
	}

	logger.Info("Server exited")
	return nil
}
