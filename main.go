package main

import (
	"log"
	"time"

	"novelcraft-backend/config"
	"novelcraft-backend/internal/api"
	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/models"
	"novelcraft-backend/internal/services"
	"novelcraft-backend/pkg/logger"
)

// @title novelcraft-backend API
// @version 1.0
// @description Backend for the NovelCraft AI-assisted writing platform.

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.InitLogger(&logger.Config{
		Level:      cfg.LogLevel,
		Filename:   cfg.LogFilename,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	}); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	router, err := api.NewRouter(cfg)
	if err != nil {
		log.Fatalf("failed to create router: %v", err)
	}

	// Migrate the schema
	err = database.DB.AutoMigrate(
		&models.User{},
		&models.Novel{},
		&models.Chapter{},
		&models.Character{},
		&models.Worldview{},
		&models.Prompt{},
		&models.ModelConfig{},
		&models.Entitlement{},
		&models.MembershipPlan{},
		&models.Transaction{},
		&models.CallRecord{},
		&models.Conversation{},
		&models.Message{},
		&models.PaymentOrderRecord{},
	)
	if err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	stopSweeper := make(chan struct{})
	defer close(stopSweeper)
	go services.StartEntitlementSweeper(time.Hour, stopSweeper)

	if err := router.Run(":" + cfg.ServerPort); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}
