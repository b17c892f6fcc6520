// Package config loads service configuration from the environment.
package config

import "os"

// Config holds everything the server needs at startup. When DatabaseURL is
// empty the server falls back to the SQLite file at DBPath.
type Config struct {
	HTTPAddr    string
	DatabaseURL string // PostgreSQL DSN; empty selects SQLite
	DBPath      string
	LogLevel    string
	Env         string // dev|prod
	CORSOrigins string // comma-separated; empty allows localhost dev ports
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getenv("DB_PATH", "./data/credits.db"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Env:         getenv("ENV", "dev"),
		CORSOrigins: os.Getenv("CORS_ORIGINS"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
