package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"incentives-backend/internal/app"
	"incentives-backend/internal/config"
	"incentives-backend/internal/router"

	"github.com/sirupsen/logrus"
)

func main() {
	setupLogging()

	configPath := os.Getenv("CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	container, err := app.InitializeContainer()
	if err != nil {
		log.Fatalf("❌ Failed to initialize services: %v", err)
	}
	defer container.Cleanup()

	// Background refresh loop (runs one refresh immediately).
	container.SchedulerService.Start()

	r := router.SetupRouter(container)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	log.Printf("🚀 Incentive dashboard backend listening on %s", addr)

	errChan := make(chan error, 1)
	go func() {
		errChan <- r.Run(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Fatalf("❌ Server error: %v", err)
	case sig := <-quit:
		log.Printf("🛑 Received signal %v, shutting down...", sig)
	}
}

func setupLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
