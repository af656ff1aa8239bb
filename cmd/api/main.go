package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/app"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/config"
	httpapi "github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/interfaces/http"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	container, err := app.NewContainer(ctx, cfg)
	if err != nil {
		panic("failed to initialize application: " + err.Error())
	}
	defer container.Close()

	logger := container.Logger
	defer logger.Sync()

	handlers := httpapi.NewHandlers(container.Intake, logger)
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Handlers:      handlers,
		KeyValue:      container.KeyValue,
		Logger:        logger,
		EnableCORS:    cfg.EnableCORS,
		EnableMetrics: cfg.EnableMetrics,
	})

	server := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
