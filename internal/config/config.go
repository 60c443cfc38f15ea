package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config is the dev server's runtime configuration, read from the
// environment with an optional .env file underneath.
type Config struct {
	Addr     string
	LogLevel string
}

func Load() Config {
	// Missing .env is fine; real env vars always win.
	_ = godotenv.Load()

	cfg := Config{
		Addr:     ":8080",
		LogLevel: "info",
	}
	if v := os.Getenv("HIVE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("HIVE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg
}
