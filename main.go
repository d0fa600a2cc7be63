package main

import (
	"context"
	"log" // standard log only for fatal errors before the logger is ready

	"marketStructureBot/config"
	"marketStructureBot/internal/adapters/binanceclient"
	"marketStructureBot/internal/adapters/logger"
	"marketStructureBot/internal/adapters/postgres"
	"marketStructureBot/internal/adapters/rediscache"
	"marketStructureBot/internal/adapters/sqlite"
	"marketStructureBot/internal/app"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	hot, err := sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize hot tier store: %v", err)
	}
	defer func() {
		if err := hot.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing hot tier store")
		}
	}()

	cold, err := postgres.New(postgres.Config{DSN: cfg.PostgresDSN, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize cold tier store: %v", err)
	}
	defer func() {
		if err := cold.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing cold tier store")
		}
	}()

	cache, err := rediscache.New(context.Background(), rediscache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Logger:   appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize structure cache: %v", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing structure cache")
		}
	}()

	source, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize candle source: %v", err)
	}

	worker, err := app.New(cfg, appLogger, source, hot, cold, cache, cold)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize worker: %v", err)
	}

	if err := worker.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Worker exited with error")
		log.Fatalf("FATAL: Worker exited with error: %v", err)
	}
}
