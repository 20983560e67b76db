package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/birbparty/birb-call/internal/fixture"
	"github.com/birbparty/birb-call/internal/telemetry"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize telemetry first so every later step can log
	telemetryCfg := telemetry.NewConfigFromEnv("birbcall-fixture")
	if err := telemetry.Init(telemetryCfg); err != nil {
		telemetry.WithError(err).Warn("Failed to initialize tracing, continuing without it")
	}
	log := telemetry.L()

	// Load fixture configuration
	cfg, err := fixture.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithField("user", cfg.Username).Info("🐦 birb-call fixture API starting...")

	server := fixture.New(cfg, telemetry.NewMetrics(), log)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("🛑 Shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Server forced to shutdown")
		}
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Failed to flush telemetry")
		}
	}()

	telemetry.WithFields(logrus.Fields{
		"host": cfg.Host,
		"port": cfg.Port,
	}).Info("🚀 birb-call fixture API listening")

	if err := server.Listen(); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}
