package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerAddress string        `env:"SERVER_ADDRESS" envDefault:"0.0.0.0:8080"`
	PostgresConn  string        `env:"POSTGRES_CONN,required"`
	NATSURL       string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	SweepBatch    int           `env:"SWEEP_BATCH" envDefault:"100"`
	HoldTTL       time.Duration `env:"PRIORITY_HOLD_TTL" envDefault:"2h"`
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
