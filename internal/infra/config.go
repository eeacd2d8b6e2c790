package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	BackendBaseURL   string
	BackendAPIKey    string
	BackendTimeout   time.Duration
	PollInterval     time.Duration
	JobTimeout       time.Duration
	StoragePath      string
	StyleCatalogPath string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		BackendBaseURL:   strings.TrimRight(strings.TrimSpace(os.Getenv("BACKEND_BASE_URL")), "/"),
		BackendAPIKey:    strings.TrimSpace(os.Getenv("BACKEND_API_KEY")),
		BackendTimeout:   time.Second * time.Duration(getEnvInt("BACKEND_REQUEST_TIMEOUT_SECONDS", 60)),
		PollInterval:     time.Millisecond * time.Duration(getEnvInt("JOB_POLL_INTERVAL_MS", 1000)),
		JobTimeout:       time.Second * time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 600)),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StyleCatalogPath: strings.TrimSpace(os.Getenv("STYLE_CATALOG_PATH")),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	if cfg.BackendBaseURL == "" {
		return nil, fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("JOB_POLL_INTERVAL_MS must be positive")
	}
	if cfg.JobTimeout < cfg.PollInterval {
		return nil, fmt.Errorf("JOB_TIMEOUT_SECONDS must cover at least one poll interval")
	}

	return cfg, nil
}

// GalleryEnabled reports whether a database is configured for the gallery sink.
func (c *Config) GalleryEnabled() bool {
	return c != nil && c.DatabaseURL != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
