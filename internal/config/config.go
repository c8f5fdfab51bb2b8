package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port            string
	AllowedOrigins  string
	MaxUploadBytes  int
	ShutdownTimeout time.Duration

	// Environment
	Environment string
	LogLevel    string

	// Database (empty URL selects the in-memory store)
	DatabaseURL string

	// OCR
	OCRWorkers int
	// MaxImagePixels caps decoded width*height of an upload
	MaxImagePixels int

	// Analytics hub
	HeartbeatInterval time.Duration
	HubSendBuffer     int
	HubWriteTimeout   time.Duration

	// Usage/notify side effects after a capture
	SideEffectTimeout time.Duration

	// S3 capture archive
	ArchiveEnabled bool
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3UseSSL       bool
	S3Region       string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
		MaxUploadBytes:    getIntEnv("MAX_UPLOAD_BYTES", 10*1024*1024),
		ShutdownTimeout:   getDurationEnv("SHUTDOWN_TIMEOUT_SECONDS", 15) * time.Second,
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		OCRWorkers:        getIntEnv("OCR_WORKERS", runtime.NumCPU()),
		MaxImagePixels:    getIntEnv("MAX_IMAGE_PIXELS", 178956970),
		HeartbeatInterval: getDurationEnv("HEARTBEAT_INTERVAL_SECONDS", 30) * time.Second,
		HubSendBuffer:     getIntEnv("HUB_SEND_BUFFER", 16),
		HubWriteTimeout:   getDurationEnv("HUB_WRITE_TIMEOUT_SECONDS", 10) * time.Second,
		SideEffectTimeout: getDurationEnv("SIDE_EFFECT_TIMEOUT_SECONDS", 5) * time.Second,
		ArchiveEnabled:    getBoolEnv("ARCHIVE_ENABLED", false),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:       getEnv("S3_SECRET_KEY", ""),
		S3Bucket:          getEnv("S3_BUCKET", "captures"),
		S3UseSSL:          getBoolEnv("S3_USE_SSL", false),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0 (got %d)", c.MaxUploadBytes)
	}
	if c.OCRWorkers <= 0 {
		return fmt.Errorf("OCR_WORKERS must be > 0 (got %d)", c.OCRWorkers)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be > 0 (got %d)", c.MaxImagePixels)
	}
	if c.HeartbeatInterval <= 0 || c.HubWriteTimeout <= 0 || c.SideEffectTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got heartbeat=%s, write=%s, side_effect=%s, shutdown=%s)",
			c.HeartbeatInterval, c.HubWriteTimeout, c.SideEffectTimeout, c.ShutdownTimeout)
	}
	if c.HubSendBuffer <= 0 {
		return fmt.Errorf("HUB_SEND_BUFFER must be > 0 (got %d)", c.HubSendBuffer)
	}
	if c.ArchiveEnabled && !c.ArchiveConfigured() {
		return fmt.Errorf("ARCHIVE_ENABLED requires S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return time.Duration(intVal)
		}
	}
	return time.Duration(defaultValue)
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ArchiveConfigured reports whether enough S3 settings are present to build an archive client.
func (c *Config) ArchiveConfigured() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// UsesMemoryStore reports whether usage and feedback live only in process memory.
func (c *Config) UsesMemoryStore() bool {
	return c.DatabaseURL == ""
}
