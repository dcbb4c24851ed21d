package config

import (
	"fmt"
	"os"
)

// Config holds all configuration for the fixspot service.
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port        string
	AllowOrigin string

	// RabbitMQ configuration (object store bucket notifications)
	RabbitMQHost     string
	RabbitMQPort     string
	RabbitMQUser     string
	RabbitMQPassword string
	RabbitMQExchange string
	RabbitMQQueue    string
	RabbitMQKey      string

	// Vision service configuration
	VisionAPIURL string
	VisionAPIKey string

	// Object store configuration
	ObjectStoreURL string

	// Catalog seed file (optional; seeded only when the catalog is empty)
	SeedFile string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "fixspot"),

		Port:        getEnv("PORT", "8080"),
		AllowOrigin: getEnv("ALLOW_ORIGIN", "*"),

		RabbitMQHost:     getEnv("RABBITMQ_HOST", "localhost"),
		RabbitMQPort:     getEnv("RABBITMQ_PORT", "5672"),
		RabbitMQUser:     getEnv("RABBITMQ_USER", "guest"),
		RabbitMQPassword: getEnv("RABBITMQ_PASSWORD", "guest"),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "bucketevents"),
		RabbitMQQueue:    getEnv("RABBITMQ_QUEUE", "fixspot-uploads"),
		RabbitMQKey:      getEnv("RABBITMQ_ROUTING_KEY", "uploaded-images"),

		VisionAPIURL: getEnv("VISION_API_URL", ""),
		VisionAPIKey: getEnv("VISION_API_KEY", ""),

		ObjectStoreURL: getEnv("OBJECT_STORE_URL", "http://localhost:9000"),

		SeedFile: getEnv("SEED_FILE", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// GetAMQPURL builds the AMQP connection URL.
func (c *Config) GetAMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RabbitMQUser, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort)
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
