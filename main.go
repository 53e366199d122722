package main

import (
	"log"

	"github.com/joho/godotenv"

	"aiservices/cmd"
	"aiservices/internal/config"
	"aiservices/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		if setupErr := logger.Setup(logger.DefaultConfig()); setupErr != nil {
			log.Fatalf("Failed to initialize logger: %v", setupErr)
		}
		logger.Fatal(err, "Invalid configuration")
	}

	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	log := logger.WithComponent("main")
	log.Info().Msg("Starting AI Services")

	cmd.Execute(cfg)

	log.Info().Msg("AI Services shutdown")
}
