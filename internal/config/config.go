package config

import (
	"errors"
	"os"

	"github.com/LiteObject/github-traffic-monitor/pkg/logger"
	"github.com/joho/godotenv"
)

type Config struct {
	GitHubToken     string
	GitHubUsername  string
	DBURL           string
	CollectInterval string
	RabbitMQURL     string
	ServerPort      string
}

// * LoadConfiguration reads the configuration from the .env file and returns a pointer to a Config
func LoadConfiguration() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		GitHubToken:     os.Getenv("GITHUB_TOKEN"),
		GitHubUsername:  os.Getenv("GITHUB_USERNAME"),
		DBURL:           os.Getenv("DB_PATH"),
		CollectInterval: os.Getenv("COLLECT_INTERVAL"),
		RabbitMQURL:     os.Getenv("RABBITMQ_URL"),
		ServerPort:      os.Getenv("SERVER_PORT"),
	}

	if cfg.GitHubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is required")
	}

	if cfg.GitHubUsername == "" {
		return nil, errors.New("GITHUB_USERNAME is required")
	}

	if cfg.DBURL == "" {
		return nil, errors.New("DB_PATH is required")
	}

	if cfg.CollectInterval == "" {
		cfg.CollectInterval = "24h"
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = ":8081"
	}

	logger.Info("env content loaded successfully")
	return cfg, nil
}
