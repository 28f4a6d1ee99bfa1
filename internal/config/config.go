package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// LINE Messaging API
	LineChannelSecret      string
	LineChannelAccessToken string
	LineAPIBase            string

	// Gemini generation backend
	GeminiAPIKey string
	GeminiModel  string

	// Conversation state
	HistoryMode     string
	HistoryWindow   int
	GenerateTimeout time.Duration
}

// Load reads configuration from environment variables. A .env file in
// the working directory takes effect first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		LineChannelSecret:      getEnv("LINE_CHANNEL_SECRET", ""),
		LineChannelAccessToken: getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineAPIBase:            getEnv("LINE_API_BASE", ""),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		HistoryMode:     strings.ToLower(strings.TrimSpace(getEnv("HISTORY_MODE", "window"))),
		HistoryWindow:   getEnvAsInt("HISTORY_WINDOW", 10),
		GenerateTimeout: getEnvAsDuration("GENERATE_TIMEOUT", 30*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
