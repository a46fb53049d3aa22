package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Port      string
	JWTSecret string

	// Document store selection: "memory", "redis" or "mongo".
	StorageType string
	RedisAddr   string
	MongoURI    string
	MongoDBName string

	// DSN for the sqlite user database.
	AuthDBDSN string

	// Debounce quiet window for persisting edits.
	Debounce time.Duration

	// Whether restore-version pushes the restored content to the
	// whole room instead of only the requester.
	BroadcastRestore bool
}

// LoadConfig reads configuration from environment variables, applying
// development defaults for anything unset.
func LoadConfig() *Config {
	return &Config{
		Port:             getEnvOrDefault("PORT", "8080"),
		JWTSecret:        getEnvOrDefault("JWT_SECRET", "dev"),
		StorageType:      getEnvOrDefault("STORAGE_TYPE", "memory"),
		RedisAddr:        getEnvOrDefault("REDIS_ADDR", "redis:6379"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDBName:      getEnvOrDefault("MONGO_DB_NAME", "codecollab"),
		AuthDBDSN:        getEnvOrDefault("AUTH_DB_DSN", "file:codecollab.db"),
		Debounce:         time.Duration(getEnvInt("DEBOUNCE_MS", 150)) * time.Millisecond,
		BroadcastRestore: getEnvBool("RESTORE_BROADCAST", true),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
