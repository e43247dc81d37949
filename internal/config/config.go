package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string
	DatabaseURL string
	LogLevel    string
}

// Load reads configuration from the environment. A .env file is applied
// when present; a missing one is not an error.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:     ":8080",
		LogLevel: "info",
	}
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg
}
