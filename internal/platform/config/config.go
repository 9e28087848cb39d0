package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures all process configuration so main stays lean. Values come
// from the environment with development defaults.
type Config struct {
	Addr string
	Port string

	RedisURL    string
	PostgresDSN string
	BlobDir     string
	AnalyzerURL string

	Queues Queues

	ConsumerGroup     string
	WaitTimeout       time.Duration
	VisibilityTimeout time.Duration
	RestartDelay      time.Duration
}

// Queues names the four streams the gateway talks to. The external pipeline
// consumes the two command queues and publishes to the two response queues.
type Queues struct {
	ValidationCommands  string
	ValidationResponses string
	IndexingCommands    string
	IndexingResponses   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	port := envOr("PORT", "3000")
	return Config{
		Addr: envOr("RETINAGATE_ADDR", ":"+port),
		Port: port,

		RedisURL:    os.Getenv("REDIS_URL"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		BlobDir:     os.Getenv("BLOB_DIR"),
		AnalyzerURL: os.Getenv("ANALYZER_URL"),

		Queues: Queues{
			ValidationCommands:  envOr("VALIDATION_QUEUE", "retina-validation-queue"),
			ValidationResponses: envOr("VALIDATION_RESPONSE_QUEUE", "retina-validation-response-queue"),
			IndexingCommands:    envOr("PROCESSING_QUEUE", "retina-processing"),
			IndexingResponses:   envOr("PROCESSING_RESPONSE_QUEUE", "retina-analysis-response-queue"),
		},

		ConsumerGroup:     envOr("CONSUMER_GROUP", "retinagate"),
		WaitTimeout:       envDurationOr("VALIDATION_WAIT_TIMEOUT", 30*time.Second),
		VisibilityTimeout: envDurationOr("VISIBILITY_TIMEOUT", time.Minute),
		RestartDelay:      envDurationOr("CONSUMER_RESTART_DELAY", 10*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
