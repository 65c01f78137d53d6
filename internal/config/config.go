package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string
	LogEnv         string // "development" | "production"
	AllowedOrigins []string
}

// Load reads configuration from the environment, with a .env file as a
// convenience for local runs. Missing keys fall back to dev defaults.
func Load() Config {
	_ = godotenv.Load() // absent .env is fine

	return Config{
		Addr:           getenv("ADDR", ":8080"),
		LogEnv:         getenv("LOG_ENV", "development"),
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "http://localhost:3000")),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
