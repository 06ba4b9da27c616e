package config

import (
	"os"
	"strings"
)

// Config holds relay configuration loaded from the environment.
type Config struct {
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	AWSRegion      string
	EventsBucket   string
	AWSEndpointURL string
	SSEKMSKeyID    string
	BlobBackend    string // "s3", "gcs" or "memory"
	AllowedOrigins string
	FrontendURL    string
	APIKeySalt     string
}

// Load loads configuration from environment variables.
// Missing values fall back to local-development defaults; production
// deployments are expected to set all of them.
func Load() *Config {
	return &Config{
		Port:           getenv("PORT", "8080"),
		LogLevel:       getenv("LOG_LEVEL", "INFO"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		AWSRegion:      getenv("AWS_REGION", "us-east-1"),
		EventsBucket:   getenv("EVENTS_BUCKET", "events-dev"),
		AWSEndpointURL: os.Getenv("AWS_ENDPOINT_URL"),
		SSEKMSKeyID:    os.Getenv("AWS_SSE_KMS_KEY_ID"),
		BlobBackend:    getenv("BLOB_BACKEND", "s3"),
		AllowedOrigins: getenv("ALLOWED_ORIGINS", "*"),
		FrontendURL:    getenv("FRONTEND_URL", "https://hooks.local"),
		APIKeySalt:     getenv("API_KEY_SALT", "dev-salt-do-not-use-in-prod"),
	}
}

// Origins splits the comma-separated ALLOWED_ORIGINS value.
func (c *Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
